package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/recordvault/backend/docs"
	"github.com/recordvault/backend/internal/audit"
	"github.com/recordvault/backend/internal/catalog"
	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/database"
	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/handlers"
	"github.com/recordvault/backend/internal/jobs"
	mW "github.com/recordvault/backend/internal/middleware"
	"github.com/recordvault/backend/internal/services"
)

// @title Record Vault Ledger API
// @version 1.0
// @description Token balances, record unlocks and entitlements.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if level, err := log.ParseLevel(cfg.App.LogLevel); err == nil {
		log.SetLevel(level)
	}

	docs.SwaggerInfo.Host = "localhost:" + cfg.App.Port

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, "up"); err != nil {
		return err
	}

	redisClient := database.InitRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, closeEvents, err := events.Connect(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer closeEvents()

	auditLogger := audit.NewLogger(log.StandardLogger())
	catalogClient := catalog.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	ledgerStore := services.NewLedgerStore(db, cfg.Ledger.HistoryLimit)
	authority := services.NewBalanceAuthority(db, ledgerStore, cfg.Ledger, publisher, auditLogger)
	entitlements := services.NewEntitlementStore(db, redisClient, cfg.Redis.EntitlementTTL, publisher)
	unlocks := services.NewUnlockService(authority, entitlements, catalogClient, redisClient, cfg.RateLimit)
	payments := services.NewPaymentService(db, authority, cfg.Payments, publisher, auditLogger)
	referrals := services.NewReferralService(db, authority, cfg.Referral, publisher)
	reconciler := services.NewReconciliationService(db, auditLogger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Ledger:        handlers.NewLedgerHandler(authority, ledgerStore),
		Unlock:        handlers.NewUnlockHandler(unlocks, entitlements),
		Payments:      handlers.NewPaymentHandler(payments),
		Referrals:     handlers.NewReferralHandler(referrals),
		Auth:          mW.NewAuthenticator(cfg.JWT.SecretKey),
		WebhookSecret: cfg.App.WebhookSecret,
		Ping:          db.PingContext,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler := jobs.NewScheduler(cfg.Jobs, reconciler, payments)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Server shutting down...")
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
