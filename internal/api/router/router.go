package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-concierge/internal/faq"
	"github.com/wolfman30/whatsapp-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-concierge/internal/http/middleware"
	"github.com/wolfman30/whatsapp-concierge/internal/whatsapp"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck = func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Webhook         *whatsapp.WebhookHandler
	AdminUsers      *handlers.AdminUsersHandler
	FAQs            *faq.Handler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	HealthChecks    map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Get("/", cfg.Webhook.Verify)
				r.Post("/", cfg.Webhook.Receive)
			})
		}
	})

	if cfg.AdminAuthSecret != "" && (cfg.AdminUsers != nil || cfg.FAQs != nil) {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			if cfg.AdminUsers != nil {
				admin.Route("/users/{phone}", func(user chi.Router) {
					user.Get("/", cfg.AdminUsers.GetUser)
					user.Get("/history", cfg.AdminUsers.GetHistory)
					user.Put("/disabled", cfg.AdminUsers.SetDisabled)
					user.Post("/messages", cfg.AdminUsers.SendMessage)
				})
			}
			if cfg.FAQs != nil {
				admin.Get("/faqs", cfg.FAQs.List)
				admin.Post("/faqs", cfg.FAQs.Upsert)
				admin.Delete("/faqs/{id}", cfg.FAQs.Delete)
			}
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": overall, "checks": results})
	}
}
