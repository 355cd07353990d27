package parishioners

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// ParishionerService is the part of Service used by Handler.
type ParishionerService interface {
	List(ctx context.Context, actor *rbac.Principal, f ListFilters) ([]Parishioner, shared.Pagination, error)
	Get(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parishioner, error)
	Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (Parishioner, error)
	Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (Parishioner, error)
	Delete(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (Parishioner, error)
}

// Handler serves the parishioner endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ParishionerService
	gate      *rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ParishionerService, gate *rbac.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate, validator: httpx.NewValidator()}
}

// MountRoutes registers parishioner routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := rbac.AnyOf(rbac.PermParishionersRead)
	write := rbac.AnyOf(rbac.PermParishionersWrite)
	r.Method(http.MethodGet, "/", h.gate.RequireParishScope(read, h.list))
	r.Method(http.MethodPost, "/", h.gate.RequireParishScope(write, h.create))
	r.Method(http.MethodGet, "/{id}", h.gate.RequireParishScope(read, h.get))
	r.Method(http.MethodPatch, "/{id}", h.gate.RequireParishScope(write, h.update))
	r.Method(http.MethodDelete, "/{id}", h.gate.RequirePermission(rbac.AnyOf(rbac.PermParishionersDelete), h.delete))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	q := r.URL.Query()
	f := ListFilters{Search: q.Get("search"), Gender: q.Get("gender")}
	if f.Gender != "" && f.Gender != GenderMale && f.Gender != GenderFemale {
		httpx.RespondError(w, h.logger, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "gender must be MALE or FEMALE"))
		return
	}
	parish, err := shared.ParseOptionalUUID(q.Get("parish"), "parish")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	f.ParishID = parish
	f.Page, f.Limit = shared.PageFromQuery(q)

	list, meta, err := h.service.List(r.Context(), ac.Principal, f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Paginated(w, map[string]any{"parishioners": list}, meta)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	pr, err := h.service.Create(r.Context(), ac.Principal, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, map[string]any{"parishioner": pr}, "parishioner created")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishionerID(w, ac)
	if !ok {
		return
	}
	pr, err := h.service.Get(r.Context(), ac.Principal, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"parishioner": pr})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishionerID(w, ac)
	if !ok {
		return
	}
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	pr, err := h.service.Update(r.Context(), ac.Principal, id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Updated(w, map[string]any{"parishioner": pr}, "parishioner updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.parishionerID(w, ac)
	if !ok {
		return
	}
	pr, err := h.service.Delete(r.Context(), ac.Principal, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Updated(w, map[string]any{"parishioner": pr}, "parishioner deleted")
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

func (h *Handler) parishionerID(w http.ResponseWriter, ac rbac.AuthContext) (uuid.UUID, bool) {
	id, err := uuid.Parse(ac.Param("id"))
	if err != nil {
		httpx.RespondError(w, h.logger, errNotFound)
		return uuid.Nil, false
	}
	return id, true
}
