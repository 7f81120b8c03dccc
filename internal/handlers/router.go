package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	mW "github.com/recordvault/backend/internal/middleware"
)

type RouterConfig struct {
	Ledger         *LedgerHandler
	Unlock         *UnlockHandler
	Payments       *PaymentHandler
	Referrals      *ReferralHandler
	Auth           *mW.Authenticator
	WebhookSecret  string
	RequestTimeout time.Duration
	// Ping reports storage health for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ping != nil {
			if err := cfg.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway, referral and support callbacks
		r.Group(func(r chi.Router) {
			r.Use(mW.WebhookSecret(cfg.WebhookSecret))

			r.Post("/webhooks/payments/confirmed", cfg.Payments.PaymentConfirmed)
			r.Post("/webhooks/payments/failed", cfg.Payments.PaymentFailed)
			r.Post("/referrals/{id}/qualify", cfg.Referrals.Qualify)
			r.Post("/admin/refunds", cfg.Ledger.Refund)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Middleware)

			r.Post("/account", cfg.Ledger.OpenAccount)
			r.Get("/account/balance", cfg.Ledger.GetBalance)
			r.Get("/account/ledger", cfg.Ledger.GetLedgerHistory)
			r.Get("/account/audit", cfg.Ledger.GetAuditHistory)

			r.Post("/records/{recordId}/unlock", cfg.Unlock.Unlock)
			r.Get("/records/{recordId}/entitlement", cfg.Unlock.CheckEntitlement)
			r.Get("/entitlements", cfg.Unlock.ListEntitlements)

			r.Post("/payments/intents", cfg.Payments.CreateIntent)
			r.Post("/referrals", cfg.Referrals.CreateLink)
		})
	})

	return r
}
