/*
store.go - Persistence contracts for the product engine

PURPOSE:
  Defines the interface between the engine and whatever holds state.
  The engine never touches a database directly; the workflow and the
  settlement passes run entirely against these contracts.

KEY INTERFACES:
  Store:   registry, user balances, product catalog, card-number
           index, transfer journal
  TxStore: Store plus WithTx, the unit-of-work boundary

UNIT OF WORK:
  Every public workflow operation and every per-application settlement
  iteration executes inside WithTx: either all of its writes become
  visible or none do. Implementations must make WithTx mutually
  exclusive per store so that two transitions of the same application
  cannot interleave — the loser re-reads and finds the application gone
  or already allowed.

IMPLEMENTATIONS:
  - finance/store/memory.go: in-memory, snapshot-rollback transactions
  - store/sqlite/sqlite.go:  SQLite with database transactions and a
                             UNIQUE card-number index
*/
package finance

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Registry, balances, catalog, card index, journal
// =============================================================================

type Store interface {
	// --- Identity and ledger accounts ---

	// GetUser returns ErrNotFound for unknown ids.
	GetUser(ctx context.Context, id UserID) (User, error)

	// FindUserByNickname returns ErrNotFound when no user carries the
	// nickname. Nicknames are unique.
	FindUserByNickname(ctx context.Context, nickname string) (User, error)

	// SaveUser creates or replaces a user record.
	SaveUser(ctx context.Context, u User) error

	// AdjustBalance applies a delta (possibly negative) to a user's
	// balance. Callers must pair every debit with an equal credit
	// within the same unit of work; see Transfer.
	AdjustBalance(ctx context.Context, id UserID, delta Money) error

	// --- Product catalog (immutable records) ---

	CreateProduct(ctx context.Context, p FinancialProduct) (ProductID, error)
	GetProduct(ctx context.Context, id ProductID) (FinancialProduct, error)
	ListProductsByFamily(ctx context.Context, family FamilyID) ([]FinancialProduct, error)

	// --- Application registry ---

	// CreateApplication assigns and returns a monotonically increasing
	// id. Descending-id ordering of the pending lists is therefore
	// newest first.
	CreateApplication(ctx context.Context, a Application) (ApplicationID, error)
	GetApplication(ctx context.Context, id ApplicationID) (Application, error)
	UpdateApplication(ctx context.Context, a Application) error
	DeleteApplication(ctx context.Context, id ApplicationID) error

	// ListPendingByFamily returns not-yet-allowed applications whose
	// applicant belongs to the family, newest first.
	ListPendingByFamily(ctx context.Context, family FamilyID) ([]Application, error)

	// ListPendingByProduct returns not-yet-allowed applications for the
	// product, newest first.
	ListPendingByProduct(ctx context.Context, product ProductID) ([]Application, error)

	// ListByApplicant returns every application of the user, any state.
	ListByApplicant(ctx context.Context, applicant UserID) ([]Application, error)

	// --- Settlement selection ---

	// ListLoansAccruingOn returns active loans originated on the given
	// day of month.
	ListLoansAccruingOn(ctx context.Context, dayOfMonth int) ([]Application, error)

	// ListLoansExpiredBefore returns active loans whose expiry is
	// strictly before now.
	ListLoansExpiredBefore(ctx context.Context, now time.Time) ([]Application, error)

	// --- Card number index ---

	// CardNumberExists reports whether the number was ever issued.
	// Implementations additionally reject duplicates at insert time
	// (UpdateApplication with a taken card number fails with
	// ErrConflict), closing the check-then-insert race.
	CardNumberExists(ctx context.Context, number string) (bool, error)

	// --- Transfer journal (append-only) ---

	// AppendTransfer records one matched debit/credit pair. No update,
	// no delete; corrections are new entries in the opposite direction.
	AppendTransfer(ctx context.Context, t Transfer) error

	// TransfersByUser returns entries where the user is either side,
	// oldest first.
	TransfersByUser(ctx context.Context, id UserID) ([]Transfer, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Unit-of-work boundary
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an
// error, every write made through the Store it received is discarded.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
