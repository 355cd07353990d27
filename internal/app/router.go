package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/auth"
	"github.com/gpbmt-org/gpbmt/internal/observability"
	"github.com/gpbmt-org/gpbmt/internal/parishes"
	"github.com/gpbmt-org/gpbmt/internal/parishioners"
	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/roles"
	"github.com/gpbmt-org/gpbmt/internal/shared"
	"github.com/gpbmt-org/gpbmt/internal/users"
	"github.com/gpbmt-org/gpbmt/jobs"
)

// APIPrefix is the mount point of every versioned endpoint.
const APIPrefix = "/api/v1"

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are not mounted.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	SessionStore        *shared.SessionStore
	CSRFManager         *shared.CSRFManager
	Metrics             *observability.Metrics
	TokenParser         rbac.TokenParser
	AuthHandler         *auth.Handler
	UsersHandler        *users.Handler
	RolesHandler        *roles.Handler
	ParishesHandler     *parishes.Handler
	ParishionersHandler *parishioners.Handler
	AuditHandler        *audit.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with GPBMT defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		SessionStore: params.SessionStore,
		CSRFManager:  params.CSRFManager,
		Metrics:      params.Metrics,
		TokenParser:  params.TokenParser,
		CSRFExempt:   []string{APIPrefix + "/auth/login"},
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.OK(w, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.ParishesHandler != nil {
			r.Route("/parishes", params.ParishesHandler.MountRoutes)
		}
		if params.ParishionersHandler != nil {
			r.Route("/parishioners", params.ParishionersHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit-logs", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
