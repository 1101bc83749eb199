/*
scheduler.go - Automated settlement scheduler

PURPOSE:
  Periodically runs the two batch passes: monthly interest accrual for
  active loans (on each loan's day-of-month) and settlement of loans
  past their expiry date.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass is idempotent per day; AccruesOn/ExpiredAt gate the work,
    so running the scheduler more often than daily only costs queries
  - Per-loan failures are isolated inside the passes; the scheduler
    only logs aggregate results

CONFIGURATION:
  - CheckInterval: How often to run both passes (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSettlementScheduler(settler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual/RunSettlement endpoints (manual triggers)
  - finance/settlement.go: the passes themselves
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/familybank/product-engine/finance"
)

// SettlementScheduler drives the daily accrual and settlement passes.
type SettlementScheduler struct {
	Settler       *finance.Settler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSettlementScheduler creates a new scheduler.
func NewSettlementScheduler(settler *finance.Settler) *SettlementScheduler {
	return &SettlementScheduler{
		Settler:       settler,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SettlementScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.runPasses()

	for {
		select {
		case <-ss.ticker.C:
			ss.runPasses()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SettlementScheduler) runPasses() {
	ctx := context.Background()

	log.Printf("[Scheduler] Running settlement passes at %v", time.Now())

	if res, err := ss.Settler.AccrueInterest(ctx); err != nil {
		log.Printf("[Scheduler] Interest accrual pass failed: %v", err)
	} else if res.Processed > 0 || res.Failed > 0 {
		log.Printf("[Scheduler] Accrual: %d processed, %d skipped, %d failed",
			res.Processed, res.Skipped, res.Failed)
	}

	if res, err := ss.Settler.SettleExpired(ctx); err != nil {
		log.Printf("[Scheduler] Expiry settlement pass failed: %v", err)
	} else if res.Processed > 0 || res.Failed > 0 {
		log.Printf("[Scheduler] Settlement: %d processed, %d skipped, %d failed",
			res.Processed, res.Skipped, res.Failed)
	}
}

// RunNow triggers an immediate run of both passes (for testing/admin).
func (ss *SettlementScheduler) RunNow() {
	ss.runPasses()
}

// GetNextRunTime returns when the next scheduled run will occur.
func (ss *SettlementScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
