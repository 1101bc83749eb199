/*
Package notify delivers the engine's fire-and-forget notifications.

The engine addresses a message to a recipient nickname with a
click-through link, a title, and a body; delivery happens out of band.
Two implementations:

  Recorder:     in-memory, for tests and the dev server
  RedisEmitter: pushes messages onto a Redis list for an external
                delivery worker (see redis.go)

Delivery failure never propagates into the financial transaction that
triggered the message; the workflow logs and continues.
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/familybank/product-engine/finance"
)

// Message is one notification addressed to a user.
type Message struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	LinkTarget string    `json:"link_target"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// NewMessage stamps a fresh id and emission time.
func NewMessage(recipient, link, title, body string) Message {
	return Message{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		LinkTarget: link,
		Title:      title,
		Body:       body,
		EmittedAt:  time.Now(),
	}
}

// Recorder collects emitted messages in memory. Safe for concurrent
// use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

var _ finance.Notifier = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, recipient, link, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, NewMessage(recipient, link, title, body))
	return nil
}

// Messages returns every emitted message, oldest first.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// For returns the messages addressed to one recipient.
func (r *Recorder) For(recipient string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Recipient == recipient {
			out = append(out, m)
		}
	}
	return out
}
