/*
journal.go - Append-only record of balance movements

PURPOSE:
  Every movement of money is a matched pair: one user debited, another
  credited by the same amount. The journal records each pair as a
  single immutable entry, so the sum of the two balances touched by an
  entry is invariant and any balance can be explained by replaying the
  journal.

CORRECTIONS:
  Entries are never edited or removed. Expiry settlement, which undoes
  an origination transfer, is itself a new entry in the opposite
  direction.
*/
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transfer is one matched debit/credit pair. FromUserID is debited,
// ToUserID is credited, both by Amount.
type Transfer struct {
	ID            string
	FromUserID    UserID
	ToUserID      UserID
	Amount        Money
	Reason        string
	ApplicationID ApplicationID
	At            time.Time
}

// NewTransfer builds a journal entry with a fresh id.
func NewTransfer(from, to UserID, amount Money, reason string, app ApplicationID, at time.Time) Transfer {
	return Transfer{
		ID:            uuid.NewString(),
		FromUserID:    from,
		ToUserID:      to,
		Amount:        amount,
		Reason:        reason,
		ApplicationID: app,
		At:            at,
	}
}

// moveFunds applies one matched pair against the store and journals it.
// It is the only place the engine adjusts balances, which keeps the
// debit and the credit equal by construction.
func moveFunds(ctx context.Context, s Store, t Transfer) error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transfer amount %v must be positive: %w", t.Amount, ErrValidation)
	}
	if err := s.AdjustBalance(ctx, t.FromUserID, t.Amount.Neg()); err != nil {
		return fmt.Errorf("debit user %d: %w", t.FromUserID, err)
	}
	if err := s.AdjustBalance(ctx, t.ToUserID, t.Amount); err != nil {
		return fmt.Errorf("credit user %d: %w", t.ToUserID, err)
	}
	if err := s.AppendTransfer(ctx, t); err != nil {
		return fmt.Errorf("journal transfer %s: %w", t.ID, err)
	}
	return nil
}
