package parishes

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// ParishService is the part of Service used by Handler.
type ParishService interface {
	List(ctx context.Context, f ListFilters) ([]Parish, error)
	Get(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parish, error)
	Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (Parish, error)
	Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (Parish, error)
	Delete(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error
}

// Handler serves the parish endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ParishService
	gate      *rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ParishService, gate *rbac.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate, validator: httpx.NewValidator()}
}

// MountRoutes registers parish routes.
func (h *Handler) MountRoutes(r chi.Router) {
	write := rbac.AnyOf(rbac.PermParishesWrite)
	r.Method(http.MethodGet, "/", h.gate.RequireAuthenticated(h.list))
	r.Method(http.MethodPost, "/", h.gate.RequirePermission(write, h.create))
	r.Method(http.MethodGet, "/{id}", h.gate.RequireAuthenticated(h.get))
	r.Method(http.MethodPatch, "/{id}", h.gate.RequirePermission(write, h.update))
	r.Method(http.MethodDelete, "/{id}", h.gate.RequirePermission(rbac.AnyOf(rbac.PermParishesDelete), h.delete))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, _ rbac.AuthContext) {
	q := r.URL.Query()
	f := ListFilters{Search: q.Get("search")}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "isActive must be true or false"))
			return
		}
		f.IsActive = &active
	}
	parishes, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"parishes": parishes})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	p, err := h.service.Create(r.Context(), ac.Principal, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, map[string]any{"parish": p}, "parish created")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishID(w, ac)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), ac.Principal, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"parish": p})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishID(w, ac)
	if !ok {
		return
	}
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	p, err := h.service.Update(r.Context(), ac.Principal, id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"parish": p})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishID(w, ac)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), ac.Principal, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Message(w, "parish deleted")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, h.logger, err)
		return false
	}
	return true
}

func (h *Handler) parishID(w http.ResponseWriter, ac rbac.AuthContext) (uuid.UUID, bool) {
	id, err := uuid.Parse(ac.Param("id"))
	if err != nil {
		httpx.RespondError(w, h.logger, errNotFound)
		return uuid.Nil, false
	}
	return id, true
}
