package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/familybank/product-engine/finance"
)

// QueueName is the Redis list key holding undelivered notifications.
const QueueName = "notifications:pending"

// RedisEmitter publishes notifications onto a Redis list (FIFO via
// RPUSH) for an out-of-process delivery worker.
type RedisEmitter struct {
	client *redis.Client
}

var _ finance.Notifier = (*RedisEmitter)(nil)

func NewRedisEmitter(client *redis.Client) *RedisEmitter {
	return &RedisEmitter{client: client}
}

func (e *RedisEmitter) Emit(ctx context.Context, recipient, link, title, body string) error {
	data, err := json.Marshal(NewMessage(recipient, link, title, body))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := e.client.RPush(ctx, QueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// QueueLength returns the number of undelivered notifications.
func (e *RedisEmitter) QueueLength(ctx context.Context) (int64, error) {
	return e.client.LLen(ctx, QueueName).Result()
}

// =============================================================================
// WORKER - Drains the queue toward a delivery function
// =============================================================================

// DeliverFunc hands one message to whatever transport actually reaches
// the user (push, websocket, email).
type DeliverFunc func(ctx context.Context, m Message) error

// Worker consumes notifications from the Redis list.
type Worker struct {
	client  *redis.Client
	deliver DeliverFunc
	stopCh  chan struct{}
}

func NewWorker(client *redis.Client, deliver DeliverFunc) *Worker {
	return &Worker{client: client, deliver: deliver, stopCh: make(chan struct{})}
}

// Start consumes until the context is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	log.Println("[Notify] worker started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[Notify] worker stopping: context cancelled")
			return
		case <-w.stopCh:
			log.Println("[Notify] worker stopping")
			return
		default:
			// BLPOP with a timeout so the stop signal is observed.
			result, err := w.client.BLPop(ctx, 5*time.Second, QueueName).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Notify] error reading from queue: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if len(result) < 2 {
				continue
			}
			w.processMessage(ctx, result[1])
		}
	}
}

// Stop signals the worker to stop consuming.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) processMessage(ctx context.Context, data string) {
	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		log.Printf("[Notify] failed to unmarshal message: %v", err)
		return
	}
	if err := w.deliver(ctx, m); err != nil {
		// Delivery is best-effort end to end; drop and log.
		log.Printf("[Notify] delivery of %s to %s failed: %v", m.ID, m.Recipient, err)
	}
}

// ProcessOne drains a single message synchronously (useful in tests).
func (w *Worker) ProcessOne(ctx context.Context) error {
	result, err := w.client.LPop(ctx, QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	w.processMessage(ctx, result)
	return nil
}
