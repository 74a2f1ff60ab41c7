package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitdb/sitdb/internal/auth"
	"github.com/sitdb/sitdb/internal/dashboard"
	"github.com/sitdb/sitdb/internal/observability"
	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/shared"
	"github.com/sitdb/sitdb/internal/users"
	"github.com/sitdb/sitdb/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	RBACMiddleware   rbac.Middleware
	AuthHandler      *auth.Handler
	ReportsHandler   *reports.Handler
	UsersHandler     *users.Handler
	DashboardHandler *dashboard.Handler
	RealtimeHandler  *realtime.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with SITDB defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(params.RBACMiddleware.Authenticate)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Endpoint tidak ditemukan")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Metode tidak didukung")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Streams outlive the request timeout.
	if params.RealtimeHandler != nil {
		r.Method(http.MethodGet, "/realtime", params.RealtimeHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestTimeout(params.Config))

		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuth)
			r.Route("/reports", params.ReportsHandler.MountRoutes)
			r.Route("/media", params.ReportsHandler.MountMediaRoutes)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireRoles(shared.RoleAdmin))
			r.Route("/users", params.UsersHandler.MountRoutes)
			if params.DashboardHandler != nil {
				r.Route("/stats", params.DashboardHandler.MountRoutes)
			}
		})

		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireRoles(shared.RoleAdmin))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
