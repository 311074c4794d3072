package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/printhub/printhub/internal/inventory"
	"github.com/printhub/printhub/internal/observability"
	"github.com/printhub/printhub/internal/payments"
	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/settlement"
	"github.com/printhub/printhub/internal/tasks"
	"github.com/printhub/printhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	BranchAuth        func(http.Handler) http.Handler
	TaskHandler       *tasks.Handler
	PaymentHandler    *payments.Handler
	SettlementHandler *settlement.Handler
	InventoryHandler  *inventory.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with printhub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.BranchAuth != nil {
			r.Use(params.BranchAuth)
		}
		r.Route("/tasks", func(r chi.Router) {
			if params.TaskHandler != nil {
				params.TaskHandler.MountRoutes(r)
			}
			if params.PaymentHandler != nil {
				params.PaymentHandler.MountRoutes(r)
			}
			if params.SettlementHandler != nil {
				params.SettlementHandler.MountTaskRoutes(r)
			}
		})
		if params.SettlementHandler != nil {
			r.Route("/credits", params.SettlementHandler.MountCreditRoutes)
			r.Route("/deferred-payments", params.SettlementHandler.MountDeferredRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})

	return r
}
