/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hub engine server: room and desk bookings,
  certificate issuance, and course payment reconciliation.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then HUB_* environment variables)
  2. Parse command-line flags (override port and database)
  3. Initialize SQLite store
  4. Connect notifications (RabbitMQ, or log output)
  5. Build domain services and API handler
  6. Start the hold-expiry sweeper
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: HUB_PORT, 8080)
  -db      SQLite database path (default: HUB_DB_PATH, hub.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. HUB_CERT_SECRET_KEY and HUB_JWT_SECRET are required.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Flush pending notifications
  5. Close database connection
  6. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
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

	"github.com/warp/hub-engine/api"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/certificate"
	"github.com/warp/hub-engine/config"
	"github.com/warp/hub-engine/notify"
	"github.com/warp/hub-engine/payment"
	"github.com/warp/hub-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Notifications
	notifier, closeNotifier := newNotifier(cfg)
	defer closeNotifier()
	dispatcher := notify.NewDispatcher(notifier, notify.DefaultTimeout)

	// Domain services
	bookings := booking.NewService(store.Bookings(), booking.NewCatalog(booking.DefaultRooms, cfg.DeskCount), cfg.RoomRatePerSeatHour, dispatcher)
	bookings.HoldTTL = cfg.HoldTTL

	scheme := certificate.NewScheme(cfg.CertPrefix, cfg.CertSecretKey)
	certificates := certificate.NewWorkflow(store.Certificates(), certificate.NewAllocator(scheme), dispatcher)

	reconciler := payment.NewReconciler(store.Payments(), dispatcher)
	handler := &api.Handler{
		Bookings:     bookings,
		Certificates: certificates,
		Reconciler:   reconciler,
		Webhook:      payment.NewWebhookHandler(cfg.PaystackSecretKey, reconciler),
		Audit:        store,
		PublicURL:    cfg.PublicURL,
		Ping:         store.Ping,
	}
	if cfg.PaystackSecretKey != "" {
		handler.Verifier = payment.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	} else {
		log.Println("Warning: HUB_PAYSTACK_SECRET_KEY not set, payment webhook and verification disabled")
	}

	// Background jobs
	sweeper := api.NewHoldSweeper(bookings, cfg.SweepInterval)
	sweeper.Start()

	// Create router
	router := api.NewRouter(handler, api.NewAuthenticator(cfg.JWTSecret), cfg.CORSOrigins)

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	sweeper.Stop()
	dispatcher.Close()

	log.Println("Server stopped")
}

// newNotifier publishes to RabbitMQ when HUB_AMQP_URL is set and falls back
// to logging otherwise, including when the broker is unreachable at startup.
func newNotifier(cfg config.Config) (notify.Notifier, func()) {
	if cfg.AMQPURL == "" {
		log.Println("📭 Notifications: logging only (HUB_AMQP_URL not set)")
		return notify.LogNotifier{}, func() {}
	}
	n, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Printf("Warning: RabbitMQ unavailable, logging notifications instead: %v", err)
		return notify.LogNotifier{}, func() {}
	}
	log.Printf("📬 Notifications: publishing to exchange %q", cfg.AMQPExchange)
	return n, func() {
		if err := n.Close(); err != nil {
			log.Printf("Warning: closing RabbitMQ connection: %v", err)
		}
	}
}
