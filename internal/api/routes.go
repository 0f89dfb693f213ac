package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atlasmedia/pulse/internal/config"
)

// SetupRoutes configures the router. Mutating routes sit behind the
// internal-role middleware; reads only require an authenticated caller,
// which the fronting proxy asserts via headers.
func SetupRoutes(h *Handlers, apiCfg config.APIConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   apiCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Liveness (no auth)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/system/status", h.SystemStatus)

		r.Route("/opportunities", func(r chi.Router) {
			r.Get("/", h.ListOpportunities)
			r.Get("/{id}", h.GetOpportunity)
			r.With(requireInternalRole(apiCfg)).Post("/build", h.BuildOpportunities)
			r.With(requireInternalRole(apiCfg)).Patch("/{id}/status", h.UpdateOpportunityStatus)
			r.With(requireInternalRole(apiCfg)).Post("/{id}/generate", h.GenerateBriefs)
		})

		r.Route("/briefs", func(r chi.Router) {
			r.Get("/{id}", h.GetBrief)
			r.With(requireInternalRole(apiCfg)).Patch("/{id}/approve", h.ApproveBrief)
			r.With(requireInternalRole(apiCfg)).Patch("/{id}/reject", h.RejectBrief)
			r.With(requireInternalRole(apiCfg)).Post("/{id}/regenerate-angle", h.RegenerateAngle)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Get("/{id}", h.GetAlert)
			r.With(requireInternalRole(apiCfg)).Patch("/{id}/acknowledge", h.AcknowledgeAlert)
			r.With(requireInternalRole(apiCfg)).Patch("/{id}/resolve", h.ResolveAlert)
		})
	})

	return r
}

// requireInternalRole gates mutating endpoints to admin and staff callers.
// The fronting proxy authenticates the user and forwards the role header.
func requireInternalRole(apiCfg config.APIConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiCfg.RoleCheckDisabled {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Header.Get("X-User-Role") {
			case "admin", "staff":
				next.ServeHTTP(w, r)
			default:
				respondError(w, http.StatusForbidden, "access denied")
			}
		})
	}
}
