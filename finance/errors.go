/*
errors.go - Centralized error types for the product engine

PURPOSE:
  One place for every error the engine returns. The request layer maps
  these onto HTTP status codes with the Is* helpers; domain callers use
  errors.Is against the sentinels.

ERROR CATEGORIES:
  1. Lookup failures  - unknown user/product/application
  2. Authorization    - cross-family operation attempts
  3. Validation       - malformed amounts, insufficient balance
  4. Conflicts        - concurrent double-transition, exhausted
                        card-number generation

PROPAGATION POLICY:
  Lookup and validation failures abort an operation before any
  mutation. A failure inside a unit of work rolls the whole unit back.
  Notification and points failures are logged and swallowed; they never
  surface through these errors.
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced user, product, or
	// application does not exist. A refused or settled application is
	// deleted, so late readers see this.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the acting guardian's family does
	// not match the product's family.
	ErrForbidden = errors.New("not the same family")

	// ErrValidation is returned for malformed input, e.g. a
	// non-positive requested amount.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a concurrent transition already
	// consumed the application, or an allow races another allow.
	ErrConflict = errors.New("conflicting concurrent transition")

	// ErrInsufficientBalance is returned when overdraft is disabled and
	// the guardian cannot fund the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCardExhausted is returned when card number generation fails to
	// find an unused number within the retry bound.
	ErrCardExhausted = errors.New("card number generation exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ForbiddenError reports a cross-family approval attempt.
type ForbiddenError struct {
	ActorID       UserID
	ActorFamily   FamilyID
	ProductFamily FamilyID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %d of family %d may not act on family %d's product: %v",
		e.ActorID, e.ActorFamily, e.ProductFamily, ErrForbidden)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InsufficientBalanceError reports a funding shortfall on approval.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("user %d: available %v, requested %v: %v",
		e.UserID, e.Available, e.Requested, ErrInsufficientBalance)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports a missing user, product, or application.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports a cross-family attempt.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsConflict reports a lost race or exhausted card generation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrCardExhausted)
}

// IsClientError reports errors caused by the caller's input rather
// than engine state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInsufficientBalance)
}
