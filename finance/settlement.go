/*
settlement.go - Batch passes over active loans

PURPOSE:
  Two independent, externally triggered passes:

  Interest accrual:  every active loan originated on today's day of
                     month pays floor(principal * rate / 100) from the
                     applicant to the product's guardian. The loan
                     stays active.
  Expiry settlement: every active loan whose expiry has passed repays
                     the full principal applicant -> guardian and the
                     application is deleted. Terminal transition.

FAILURE ISOLATION:
  Each matching application is its own unit of work. One failure is
  counted and logged; the pass continues with the remaining
  applications. Applications are processed in the order the store
  returns them, but no application depends on another's outcome.

CONCURRENCY:
  The candidate list is a snapshot; each iteration re-reads the
  application inside its transaction and skips it if a concurrent
  refusal or settlement already removed it, or if it no longer matches
  the pass condition.
*/
package finance

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Settler struct {
	Store  TxStore
	Points Points

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (st *Settler) now() time.Time {
	if st.Now != nil {
		return st.Now()
	}
	return time.Now()
}

// PassResult summarizes one batch pass.
type PassResult struct {
	Processed int
	Skipped   int
	Failed    int
}

// AccrueInterest runs the daily interest pass.
func (st *Settler) AccrueInterest(ctx context.Context) (PassResult, error) {
	now := st.now()
	day := now.Day()

	loans, err := st.Store.ListLoansAccruingOn(ctx, day)
	if err != nil {
		return PassResult{}, fmt.Errorf("list loans accruing on day %d: %w", day, err)
	}

	var res PassResult
	for _, loan := range loans {
		var transfer Transfer
		skipped := false

		err := st.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, loan.ID)
			if err != nil {
				if IsNotFound(err) {
					skipped = true // settled or refused since the snapshot
					return nil
				}
				return err
			}
			if !app.AccruesOn(day) {
				skipped = true
				return nil
			}
			product, err := s.GetProduct(ctx, app.ProductID)
			if err != nil {
				return err
			}

			interest := app.Amount.Percent(product.Rate)
			if !interest.IsPositive() {
				skipped = true // principal too small to floor to a whole unit
				return nil
			}
			transfer = NewTransfer(app.ApplicantID, product.GuardianID, interest, ReasonLoanInterest, app.ID, now)
			return moveFunds(ctx, s, transfer)
		})
		switch {
		case err != nil:
			res.Failed++
			log.Printf("[Settlement] interest accrual for application %d failed: %v", loan.ID, err)
		case skipped:
			res.Skipped++
		default:
			res.Processed++
			st.award(ctx, transfer)
		}
	}
	return res, nil
}

// SettleExpired runs the lifecycle expiry pass.
func (st *Settler) SettleExpired(ctx context.Context) (PassResult, error) {
	now := st.now()

	loans, err := st.Store.ListLoansExpiredBefore(ctx, now)
	if err != nil {
		return PassResult{}, fmt.Errorf("list expired loans: %w", err)
	}

	var res PassResult
	for _, loan := range loans {
		var transfer Transfer
		skipped := false

		err := st.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, loan.ID)
			if err != nil {
				if IsNotFound(err) {
					skipped = true
					return nil
				}
				return err
			}
			if !app.ExpiredAt(now) {
				skipped = true
				return nil
			}
			product, err := s.GetProduct(ctx, app.ProductID)
			if err != nil {
				return err
			}

			// Exact inverse of origination: the applicant repays the
			// principal, then the application is gone.
			transfer = NewTransfer(app.ApplicantID, product.GuardianID, app.Amount, ReasonLoanReturned, app.ID, now)
			if err := moveFunds(ctx, s, transfer); err != nil {
				return err
			}
			return s.DeleteApplication(ctx, app.ID)
		})
		switch {
		case err != nil:
			res.Failed++
			log.Printf("[Settlement] expiry settlement for application %d failed: %v", loan.ID, err)
		case skipped:
			res.Skipped++
		default:
			res.Processed++
			st.award(ctx, transfer)
		}
	}
	return res, nil
}

func (st *Settler) award(ctx context.Context, t Transfer) {
	if st.Points == nil {
		return
	}
	if err := st.Points.Award(ctx, t.FromUserID, t.ToUserID, t.Reason, t.Amount); err != nil {
		log.Printf("[Settlement] points award failed (%s, %v): %v", t.Reason, t.Amount, err)
	}
}
