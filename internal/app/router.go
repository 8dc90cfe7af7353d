package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/directory"
	"github.com/shopledger/shopledger/internal/inventory"
	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/procurement"
	"github.com/shopledger/shopledger/internal/reporting"
	"github.com/shopledger/shopledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	ProcurementHandler *procurement.Handler
	PayablesHandler    *payables.Handler
	ReportingHandler   *reporting.Handler
	InventoryHandler   *inventory.Handler
	DirectoryHandler   *directory.Handler
	JobHandler         *jobs.Handler
	ReportCache        CacheInvalidator
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the API mounted under /api.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(requestLogger(logger))

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
		r.Use(InvalidateOnWrite(params.ReportCache, logger))
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.PayablesHandler != nil {
			params.PayablesHandler.MountRoutes(r)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.DirectoryHandler != nil {
			params.DirectoryHandler.MountRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported on "+r.URL.Path)
	})

	return r
}
