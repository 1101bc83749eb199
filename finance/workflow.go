/*
workflow.go - Application lifecycle: apply, allow, refuse

PURPOSE:
  Orchestrates the state machine around an application:

    apply   -> pending application, guardian notified
    allow   -> flag set, loans get card number + expiry, funds move
               guardian -> applicant (loans) or applicant -> guardian
               (savings), points awarded, applicant notified
    refuse  -> application deleted, applicant notified, no funds move

TRANSACTION BOUNDARY:
  Allow and Refuse re-read the application inside WithTx. The state
  flag, card number, both balance adjustments, and the journal entry
  commit together or not at all. A concurrent transition on the same
  application loses cleanly: it observes the application deleted
  (ErrNotFound) or already allowed (ErrConflict) and changes nothing.

SIDE EFFECTS:
  Points awards and notifications happen after the unit of work
  commits. They are best-effort: a failure is logged and swallowed,
  never rolled back into the financial transaction.
*/
package finance

import (
	"context"
	"fmt"
	"log"
	"time"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Notifier delivers out-of-band notifications. Fire and forget: the
// workflow logs a returned error and moves on.
type Notifier interface {
	Emit(ctx context.Context, recipientNickname, linkTarget, title, body string) error
}

// Points is the narrow surface of the points/rewards subsystem.
type Points interface {
	Award(ctx context.Context, from, to UserID, reason string, amount Money) error
}

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	Store    TxStore
	Cards    *CardNumberGenerator
	Points   Points
	Notifier Notifier

	// AllowOverdraft lets the paying balance go negative on approval,
	// matching the permissive historical behavior. Off by default:
	// approvals then fail with InsufficientBalanceError.
	AllowOverdraft bool

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Apply creates a pending application for the product and notifies the
// product's guardian. Fails with ErrNotFound if the applicant or the
// product does not exist, ErrValidation for a non-positive amount.
func (w *Workflow) Apply(ctx context.Context, applicantID UserID, productID ProductID, amount Money) (Application, error) {
	if !amount.IsPositive() {
		return Application{}, fmt.Errorf("requested amount %v must be positive: %w", amount, ErrValidation)
	}

	var (
		app      Application
		product  FinancialProduct
		guardian User
		applicnt User
	)
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		applicnt, err = s.GetUser(ctx, applicantID)
		if err != nil {
			return fmt.Errorf("applicant %d: %w", applicantID, err)
		}
		product, err = s.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("product %d: %w", productID, err)
		}
		guardian, err = s.GetUser(ctx, product.GuardianID)
		if err != nil {
			return fmt.Errorf("guardian %d: %w", product.GuardianID, err)
		}

		app = Application{
			ApplicantID: applicantID,
			ProductID:   productID,
			Kind:        product.Kind,
			Amount:      amount,
			Allowed:     false,
		}
		app.ID, err = s.CreateApplication(ctx, app)
		return err
	})
	if err != nil {
		return Application{}, err
	}

	w.emit(ctx, guardian.Nickname,
		fmt.Sprintf("/financeDetail/%d", product.ID),
		applicationTitle(product.Kind),
		fmt.Sprintf("%s applied for [%s] at amount %v", applicnt.Nickname, product.Name, amount))

	return app, nil
}

// Allow approves a pending application. The acting guardian must
// belong to the product's family. For loans this assigns the card
// number and expiry and moves the principal guardian -> applicant; for
// savings the deposit moves applicant -> guardian.
func (w *Workflow) Allow(ctx context.Context, id ApplicationID, actingGuardianID UserID) (Application, error) {
	var (
		app       Application
		product   FinancialProduct
		guardian  User
		applicant User
		transfer  Transfer
	)
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		app, err = s.GetApplication(ctx, id)
		if err != nil {
			return fmt.Errorf("application %d: %w", id, err)
		}
		if app.Allowed {
			return fmt.Errorf("application %d already allowed: %w", id, ErrConflict)
		}
		product, err = s.GetProduct(ctx, app.ProductID)
		if err != nil {
			return fmt.Errorf("product %d: %w", app.ProductID, err)
		}
		guardian, err = s.GetUser(ctx, actingGuardianID)
		if err != nil {
			return fmt.Errorf("guardian %d: %w", actingGuardianID, err)
		}
		if guardian.FamilyID != product.FamilyID {
			return &ForbiddenError{ActorID: guardian.ID, ActorFamily: guardian.FamilyID, ProductFamily: product.FamilyID}
		}
		applicant, err = s.GetUser(ctx, app.ApplicantID)
		if err != nil {
			return fmt.Errorf("applicant %d: %w", app.ApplicantID, err)
		}

		now := w.now()
		app.Allowed = true
		if app.Kind == KindLoan {
			app.OriginatedAt = now
			app.ExpiresAt = now.AddDate(0, 0, product.PeriodDays)
			app.CardNumber, err = w.Cards.Generate(ctx, s, product.FamilyID, product.ID, guardian.ID)
			if err != nil {
				return err
			}
		}

		transfer = w.approvalTransfer(app, guardian, applicant, now)
		if !w.AllowOverdraft {
			payer, err := s.GetUser(ctx, transfer.FromUserID)
			if err != nil {
				return err
			}
			if payer.Balance.LessThan(transfer.Amount) {
				return &InsufficientBalanceError{UserID: payer.ID, Available: payer.Balance, Requested: transfer.Amount}
			}
		}
		if err := moveFunds(ctx, s, transfer); err != nil {
			return err
		}
		return s.UpdateApplication(ctx, app)
	})
	if err != nil {
		return Application{}, err
	}

	w.award(ctx, transfer)
	w.emit(ctx, applicant.Nickname, "/account",
		approvalTitle(app.Kind),
		fmt.Sprintf("%s approved [%s]", guardian.Nickname, product.Name))

	return app, nil
}

// Refuse rejects a pending application and deletes it. The same family
// validation as Allow applies; no funds move.
func (w *Workflow) Refuse(ctx context.Context, id ApplicationID, actingGuardianID UserID) error {
	var (
		product   FinancialProduct
		guardian  User
		applicant User
	)
	err := w.Store.WithTx(ctx, func(s Store) error {
		app, err := s.GetApplication(ctx, id)
		if err != nil {
			return fmt.Errorf("application %d: %w", id, err)
		}
		product, err = s.GetProduct(ctx, app.ProductID)
		if err != nil {
			return fmt.Errorf("product %d: %w", app.ProductID, err)
		}
		guardian, err = s.GetUser(ctx, actingGuardianID)
		if err != nil {
			return fmt.Errorf("guardian %d: %w", actingGuardianID, err)
		}
		if guardian.FamilyID != product.FamilyID {
			return &ForbiddenError{ActorID: guardian.ID, ActorFamily: guardian.FamilyID, ProductFamily: product.FamilyID}
		}
		applicant, err = s.GetUser(ctx, app.ApplicantID)
		if err != nil {
			return fmt.Errorf("applicant %d: %w", app.ApplicantID, err)
		}
		return s.DeleteApplication(ctx, id)
	})
	if err != nil {
		return err
	}

	w.emit(ctx, applicant.Nickname,
		fmt.Sprintf("/financeDetail/%d", id),
		refusalTitle(product.Kind),
		fmt.Sprintf("%s refused [%s]", guardian.Nickname, product.Name))

	return nil
}

// approvalTransfer picks the matched pair for the product kind. Loans
// fund the applicant from the guardian; savings deposit the applicant's
// money with the guardian. Settlement later reverses the loan pair.
func (w *Workflow) approvalTransfer(app Application, guardian, applicant User, at time.Time) Transfer {
	if app.Kind == KindSavings {
		return NewTransfer(applicant.ID, guardian.ID, app.Amount, ReasonSavingsDeposit, app.ID, at)
	}
	return NewTransfer(guardian.ID, applicant.ID, app.Amount, ReasonLoanPrincipal, app.ID, at)
}

// =============================================================================
// REGISTRY VIEWS
// =============================================================================

// PendingByFamily lists not-yet-allowed applications across the
// family, newest first.
func (w *Workflow) PendingByFamily(ctx context.Context, family FamilyID) ([]Application, error) {
	return w.Store.ListPendingByFamily(ctx, family)
}

// PendingByProduct lists not-yet-allowed applications for one product,
// newest first.
func (w *Workflow) PendingByProduct(ctx context.Context, product ProductID) ([]Application, error) {
	return w.Store.ListPendingByProduct(ctx, product)
}

// ByNickname lists a user's applications in any state.
func (w *Workflow) ByNickname(ctx context.Context, nickname string) ([]Application, error) {
	u, err := w.Store.FindUserByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}
	return w.Store.ListByApplicant(ctx, u.ID)
}

// =============================================================================
// BEST-EFFORT SIDE EFFECTS
// =============================================================================

func (w *Workflow) award(ctx context.Context, t Transfer) {
	if w.Points == nil {
		return
	}
	if err := w.Points.Award(ctx, t.FromUserID, t.ToUserID, t.Reason, t.Amount); err != nil {
		log.Printf("[Workflow] points award failed (%s, %v): %v", t.Reason, t.Amount, err)
	}
}

func (w *Workflow) emit(ctx context.Context, recipient, link, title, body string) {
	if w.Notifier == nil {
		return
	}
	if err := w.Notifier.Emit(ctx, recipient, link, title, body); err != nil {
		log.Printf("[Workflow] notification to %s failed: %v", recipient, err)
	}
}

func applicationTitle(kind ProductKind) string {
	if kind == KindSavings {
		return "Savings plan application"
	}
	return "Loan product application"
}

func approvalTitle(kind ProductKind) string {
	if kind == KindSavings {
		return "Savings plan approved"
	}
	return "Loan product approved"
}

func refusalTitle(kind ProductKind) string {
	if kind == KindSavings {
		return "Savings plan refused"
	}
	return "Loan product refused"
}
