package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	InventoryHandler  *inventory.Handler
	InboundHandler    *inbound.Handler
	OutboundHandler   *outbound.Handler
	ReportingHandler  *reporting.Handler
	MasterDataHandler *masterdata.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewHandlers builds every HTTP handler from a wired container.
func NewHandlers(c *Container, jobHandler *jobs.Handler) RouterParams {
	return RouterParams{
		Logger:            c.Logger,
		Config:            c.Config,
		InventoryHandler:  inventory.NewHandler(c.Logger, c.Inventory),
		InboundHandler:    inbound.NewHandler(c.Logger, c.Inbound),
		OutboundHandler:   outbound.NewHandler(c.Logger, c.Outbound),
		ReportingHandler:  reporting.NewHandler(c.Logger, c.Reporting),
		MasterDataHandler: masterdata.NewHandler(c.Logger, c.MasterData),
		JobHandler:        jobHandler,
		Metrics:           c.Metrics,
	}
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			if params.ReportingHandler != nil {
				params.ReportingHandler.MountInventoryRoutes(r)
			}
			params.InventoryHandler.MountRoutes(r)
		})
		if params.MasterDataHandler != nil {
			r.Route("/locations", func(r chi.Router) {
				if params.ReportingHandler != nil {
					params.ReportingHandler.MountLocationRoutes(r)
				}
				params.MasterDataHandler.MountLocationRoutes(r)
			})
			r.Route("/products", params.MasterDataHandler.MountProductRoutes)
		}
		r.Route("/shipments", params.InboundHandler.MountRoutes)
		r.Route("/orders", params.OutboundHandler.MountRoutes)
		if params.ReportingHandler != nil {
			r.Route("/dashboard", params.ReportingHandler.MountRoutes)
		}
	})

	return r
}
