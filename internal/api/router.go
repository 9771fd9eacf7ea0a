package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/refis/simulator/internal/ingestion"
	"github.com/refis/simulator/internal/simulation"
)

// NewRouter creates the Chi router with all API routes mounted. A nil
// limiter disables rate limiting.
func NewRouter(
	simSvc *simulation.Service,
	ingestionSvc *ingestion.Service,
	limiter *RateLimiter,
) http.Handler {
	h := &Handlers{
		simSvc:       simSvc,
		ingestionSvc: ingestionSvc,
		now:          time.Now,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	if limiter != nil {
		r.Use(RateLimitMiddleware(limiter))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", h.GetRules)

		// Stateless simulations.
		r.Post("/simulations/preview", h.PreviewItem)
		r.Post("/simulations/compare", h.CompareItem)

		// Items.
		r.Get("/items", h.ListItems)
		r.Post("/items", h.CreateItem)
		r.Delete("/items", h.ResetItems)
		r.Get("/items/{id}", h.GetItem)
		r.Put("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.DeleteItem)

		// Groups.
		r.Get("/groups", h.ListGroups)
		r.Post("/groups", h.CreateGroup)
		r.Delete("/groups", h.ClearGroups)
		r.Post("/groups/preview", h.PreviewGroup)
		r.Get("/groups/{id}", h.GetGroup)
		r.Delete("/groups/{id}", h.DeleteGroup)

		// Consolidated views.
		r.Get("/consolidation/items", h.ConsolidateItems)
		r.Get("/consolidation/groups", h.ConsolidateGroups)
		r.Get("/summary", h.GetSummary)

		// Import and export.
		r.Post("/imports", h.Import)
		r.Get("/exports/items.csv", h.ExportItemsCSV)
		r.Get("/exports/groups.csv", h.ExportGroupsCSV)
		r.Get("/exports/bundle.json", h.ExportBundle)
		r.Get("/exports/report.pdf", h.ExportReport)
	})

	return r
}
