package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

// Handler manages role endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    *rbac.Gate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *rbac.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers role routes. Both are open to any signed in user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/", h.gate.RequireAuthenticated(h.listRoles))
	r.Method(http.MethodGet, "/permissions", h.gate.RequireAuthenticated(h.catalog))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request, _ rbac.AuthContext) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"roles": roles})
}

func (h *Handler) catalog(w http.ResponseWriter, _ *http.Request, _ rbac.AuthContext) {
	httpx.OK(w, map[string]any{"permissions": h.service.Catalog()})
}
