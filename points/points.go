/*
Package points is the engine's view of the points/rewards subsystem.

The engine only ever awards points: every money movement (loan
principal, interest, settlement, savings deposit) credits the pair with
a tagged award. Accounting, redemption, and balances of points live
elsewhere; Recorder here is the in-process implementation used by the
dev server and tests.
*/
package points

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/familybank/product-engine/finance"
)

// Award is one recorded grant.
type Award struct {
	ID         string
	FromUserID finance.UserID
	ToUserID   finance.UserID
	Reason     string
	Amount     finance.Money
	At         time.Time
}

// Recorder is an in-memory finance.Points implementation. Safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	awards []Award
}

var _ finance.Points = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Award(_ context.Context, from, to finance.UserID, reason string, amount finance.Money) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awards = append(r.awards, Award{
		ID:         uuid.NewString(),
		FromUserID: from,
		ToUserID:   to,
		Reason:     reason,
		Amount:     amount,
		At:         time.Now(),
	})
	return nil
}

// Awards returns every recorded award, oldest first.
func (r *Recorder) Awards() []Award {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Award(nil), r.awards...)
}

// ByUser returns awards where the user is either side.
func (r *Recorder) ByUser(id finance.UserID) []Award {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Award
	for _, a := range r.awards {
		if a.FromUserID == id || a.ToUserID == id {
			out = append(out, a)
		}
	}
	return out
}
