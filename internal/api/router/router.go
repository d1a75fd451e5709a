package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/haloweavedev/laine/internal/http/middleware"
	"github.com/haloweavedev/laine/internal/practice"
	"github.com/haloweavedev/laine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	// VoiceWebhook serves POST /webhooks/voice/tool-call.
	VoiceWebhook http.Handler

	// PracticeAdmin serves the admin practice-configuration endpoints,
	// guarded by AdminAuthSecret.
	PracticeAdmin   *practice.Handler
	AdminAuthSecret string

	MetricsHandler http.Handler

	// WebhookRate limits tool-call webhook traffic per IP. Zero disables
	// the limiter.
	WebhookRate  float64
	WebhookBurst int
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.VoiceWebhook != nil {
		r.Group(func(hook chi.Router) {
			if cfg.WebhookRate > 0 {
				hook.Use(httpmiddleware.TurnRateLimit(cfg.WebhookRate, cfg.WebhookBurst))
			}
			hook.Post("/webhooks/voice/tool-call", cfg.VoiceWebhook.ServeHTTP)
		})
	}

	if cfg.PracticeAdmin != nil {
		r.Route("/admin/practices/{practiceID}", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/sync", cfg.PracticeAdmin.SyncAppointmentTypes)
			admin.Get("/appointment-types", cfg.PracticeAdmin.ListAppointmentTypes)
		})
	}

	return r
}
