/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the family banking product engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire notifier (Redis queue or in-process recorder) and points
  4. Create workflow, settler, handler, router, scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: familybank.db)
                    Use ":memory:" for an in-memory database
  -redis            Redis address for the notification queue; empty
                    keeps notifications in-process (default: empty)
  -allow-overdraft  Let guardians approve loans beyond their balance
  -settle-interval  How often the settlement scheduler runs
                    (default: 24h; 0 disables the scheduler)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the settlement scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/familybank.db"

  # Run with Redis-backed notifications
  ./server -redis=localhost:6379

  # Dev server, no scheduler
  ./server -db=":memory:" -settle-interval=0

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Settlement scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/familybank/product-engine/api"
	"github.com/familybank/product-engine/finance"
	"github.com/familybank/product-engine/notify"
	"github.com/familybank/product-engine/points"
	"github.com/familybank/product-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "familybank.db", "SQLite database path")
	redisAddr := flag.String("redis", "", "Redis address for the notification queue (empty: in-process)")
	allowOverdraft := flag.Bool("allow-overdraft", false, "allow loan approval beyond the guardian's balance")
	settleInterval := flag.Duration("settle-interval", 24*time.Hour, "settlement scheduler interval (0 disables)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Notifications: Redis queue when configured, in-process otherwise
	var notifier finance.Notifier
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", *redisAddr, err)
		}
		defer client.Close()
		notifier = notify.NewRedisEmitter(client)
		log.Printf("Notifications queued to Redis at %s", *redisAddr)
	} else {
		notifier = notify.NewRecorder()
	}

	// Engine wiring
	awards := points.NewRecorder()
	workflow := &finance.Workflow{
		Store:          store,
		Cards:          finance.NewCardNumberGenerator(),
		Points:         awards,
		Notifier:       notifier,
		AllowOverdraft: *allowOverdraft,
	}
	settler := &finance.Settler{Store: store, Points: awards}

	handler := api.NewHandler(store, workflow, settler)
	router := api.NewRouter(handler)

	// Settlement scheduler
	scheduler := api.NewSettlementScheduler(settler)
	if *settleInterval <= 0 {
		scheduler.Enabled = false
	} else {
		scheduler.CheckInterval = *settleInterval
	}
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
