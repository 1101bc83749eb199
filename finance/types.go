/*
Package finance implements the family banking product engine.

PURPOSE:
  Guardians publish financial products (loans, savings plans) scoped to
  their family. Family members apply for them; a guardian in the same
  family approves or refuses. Approved loans receive a generated card
  number, accrue interest monthly, and settle back to the guardian at
  expiry.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integer currency amount backed by decimal.Decimal
  - User / FinancialProduct / Application: the persisted records
  - Typed identifiers so a product id can't be passed as a user id

DESIGN PRINCIPLES:
  1. The engine mutates state only through Store within a unit of work
  2. Precision: decimal.Decimal, never float, for currency
  3. Applications are deleted on refusal and on expiry settlement;
     there is no archived state

SEE ALSO:
  - workflow.go: apply / allow / refuse lifecycle
  - settlement.go: interest accrual and expiry settlement passes
  - store.go: persistence contracts
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Integer currency amount (stored as decimal for exact arithmetic)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(units int64) Money {
	return Money{Value: decimal.NewFromInt(units)}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool     { return m.Value.Equal(o.Value) }
func (m Money) LessThan(o Money) bool  { return m.Value.LessThan(o.Value) }
func (m Money) Int64() int64           { return m.Value.IntPart() }
func (m Money) String() string         { return m.Value.String() }

// Percent returns floor(m * rate / 100). Used for monthly loan interest,
// which truncates toward zero the way the ledger stores whole units.
func (m Money) Percent(rate int) Money {
	return Money{Value: m.Value.Mul(decimal.NewFromInt(int64(rate))).Div(decimal.NewFromInt(100)).Floor()}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID        int64
	FamilyID      int64
	ProductID     int64
	ApplicationID int64
)

// =============================================================================
// USERS AND ROLES
// =============================================================================

type Role string

const (
	RoleGuardian  Role = "guardian"
	RoleDependent Role = "dependent"
)

// User is the ledger-account view of a family member: identity, family
// scope, role, and current balance. The balance is mutated only through
// Store.AdjustBalance inside a unit of work.
type User struct {
	ID       UserID
	Nickname string
	FamilyID FamilyID
	Role     Role
	Balance  Money
}

// CanApproveFamilyFinancials reports whether the user may act on
// applications at all. The family-match check against a specific
// product happens separately in the workflow.
func CanApproveFamilyFinancials(u User) bool {
	return u.Role == RoleGuardian
}

// =============================================================================
// FINANCIAL PRODUCTS
// =============================================================================

type ProductKind string

const (
	KindLoan    ProductKind = "loan"
	KindSavings ProductKind = "savings"
)

// FinancialProduct is immutable after creation. PeriodDays is the
// days-to-expiry basis for loans; Rate is a whole percentage applied
// monthly to outstanding loan principal.
type FinancialProduct struct {
	ID         ProductID
	GuardianID UserID
	FamilyID   FamilyID
	Name       string
	Rate       int
	Info       string
	PeriodDays int
	Kind       ProductKind
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// Application is a family member's request for a product. Loans and
// savings share the shape; only loans carry card number and expiry,
// assigned at approval. Refused and expiry-settled applications are
// deleted from the registry.
type Application struct {
	ID          ApplicationID
	ApplicantID UserID
	ProductID   ProductID
	Kind        ProductKind
	Amount      Money
	Allowed     bool

	// Loan-only fields, zero until the application is allowed.
	CardNumber   string
	OriginatedAt time.Time
	ExpiresAt    time.Time
}

// AccruesOn reports whether an active loan accrues interest on the
// given day of month (the origination day-of-month rule).
func (a *Application) AccruesOn(dayOfMonth int) bool {
	return a.Kind == KindLoan && a.Allowed && a.OriginatedAt.Day() == dayOfMonth
}

// ExpiredAt reports whether an active loan's term has ended. The
// comparison is strict: a loan expiring exactly now is not yet settled.
func (a *Application) ExpiredAt(now time.Time) bool {
	return a.Kind == KindLoan && a.Allowed && !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now)
}

// =============================================================================
// TRANSFER REASONS - Human-readable tags on journal entries and points
// =============================================================================

const (
	ReasonLoanPrincipal  = "loan principal"
	ReasonLoanInterest   = "loan interest"
	ReasonLoanReturned   = "loan principal returned"
	ReasonSavingsDeposit = "savings deposit"
)
