package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/api/handler"
	apimw "github.com/notifyhub/scribe-dispatch/internal/api/middleware"
	"github.com/notifyhub/scribe-dispatch/internal/service"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Service        *service.NotificationService
	Workers        handler.WorkerHandlerOptions
	AdminJWTSecret string
	Gatherer       prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	hh := handler.NewHealthHandler(deps.Service.Pending)
	wh := handler.NewWorkerHandler(deps.Workers, logger)
	nh := handler.NewNotificationHandler(deps.Service, logger)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	// worker reporting channel; workers authenticate at the proxy
	r.Post("/healthcheck", wh.Report)
	r.With(apimw.RequireAdmin(deps.AdminJWTSecret)).Get("/healthcheck", wh.Snapshot)
	r.Get("/status", wh.Status)

	r.Route("/api/v1", func(r chi.Router) {
		// /batch and /test are registered first so they are never shadowed by later patterns.
		r.Post("/notifications/batch", nh.CreateBatch)
		r.With(apimw.RequireAdmin(deps.AdminJWTSecret)).Post("/notifications/test", nh.TestSet)
		r.Post("/notifications", nh.Create)
		r.Get("/queue", nh.Queue)
	})

	return r
}
