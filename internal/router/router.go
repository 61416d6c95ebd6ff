package router

import (
	"net/http"

	"toolwatch/internal/handler"
	"toolwatch/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	TrackerHandler *handler.TrackerHandler
	TickHandler    *handler.TickHandler
	JournalHandler *handler.JournalHandler
	AdminHandler   *handler.AdminHandler
	// IngestAuth guards the tick endpoints and the admin stats.
	IngestAuth     func(http.Handler) http.Handler
	Metrics        http.Handler
	MetricsPath    string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.Metrics)
	}

	auth := cfg.IngestAuth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Read side for the audit dashboard.
		if cfg.TrackerHandler != nil {
			r.Get("/state", cfg.TrackerHandler.GetState)
			r.Get("/events", cfg.TrackerHandler.ListEvents)
			r.Get("/events/{id}", cfg.TrackerHandler.GetEvent)
			r.Get("/inventory", cfg.TrackerHandler.GetInventory)
			r.Get("/checkouts", cfg.TrackerHandler.ListCheckouts)
			r.Get("/overview", cfg.TrackerHandler.GetOverview)
		}
		if cfg.JournalHandler != nil {
			r.Get("/journal", cfg.JournalHandler.ListEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth)

			if cfg.TickHandler != nil {
				r.Post("/ticks", cfg.TickHandler.Ingest)
				r.Post("/ticks/batch", cfg.TickHandler.IngestBatch)
			}
			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
			}
		})
	})

	return r
}
