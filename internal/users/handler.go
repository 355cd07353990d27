package users

import (
	"context"
	"errors"
	"io"
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

// UserService is the part of Service used by Handler.
type UserService interface {
	List(ctx context.Context, f ListFilters) ([]User, shared.Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, actor *rbac.Principal, in CreateInput) (User, error)
	Update(ctx context.Context, actor *rbac.Principal, id uuid.UUID, in UpdateInput) (User, error)
	Deactivate(ctx context.Context, actor *rbac.Principal, id uuid.UUID) (User, error)
	ResetPassword(ctx context.Context, actor *rbac.Principal, id uuid.UUID, newPassword string) (ResetPasswordResult, error)
	ChangeRole(ctx context.Context, actor *rbac.Principal, id uuid.UUID, roleID uuid.UUID) (User, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   UserService
	gate      *rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service UserService, gate *rbac.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := rbac.AnyOf(rbac.PermUsersRead)
	write := rbac.AnyOf(rbac.PermUsersWrite)

	r.Method(http.MethodGet, "/", h.gate.RequirePermission(read, h.list))
	r.Method(http.MethodPost, "/", h.gate.RequirePermission(write, h.create))
	r.Method(http.MethodGet, "/{id}", h.gate.RequirePermission(read, h.get))
	r.Method(http.MethodPatch, "/{id}", h.gate.RequirePermission(write, h.update))
	r.Method(http.MethodDelete, "/{id}", h.gate.RequirePermission(rbac.AnyOf(rbac.PermUsersDelete), h.deactivate))
	r.Method(http.MethodPost, "/{id}/reset-password", h.gate.RequirePermission(write, h.resetPassword))
	r.Method(http.MethodPatch, "/{id}/role", h.gate.RequirePermission(write, h.changeRole))
}

type userEnvelope struct {
	User User `json:"user"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, _ rbac.AuthContext) {
	f, err := filtersFromRequest(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	users, meta, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Paginated(w, users, meta)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	u, err := h.service.Create(r.Context(), ac.Principal, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Created(w, userEnvelope{User: u}, "user created")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.userID(w, ac)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, userEnvelope{User: u})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.userID(w, ac)
	if !ok {
		return
	}
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	u, err := h.service.Update(r.Context(), ac.Principal, id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, userEnvelope{User: u})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.userID(w, ac)
	if !ok {
		return
	}
	u, err := h.service.Deactivate(r.Context(), ac.Principal, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Success: true, Data: userEnvelope{User: u}, Message: "user deactivated"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.userID(w, ac)
	if !ok {
		return
	}
	// The body is optional.
	var in ResetPasswordInput
	if err := httpx.DecodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.ResetPassword(r.Context(), ac.Principal, id, in.NewPassword)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data:    res,
		Message: "password reset; the user must change it at next login",
	})
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	id, ok := h.userID(w, ac)
	if !ok {
		return
	}
	var in ChangeRoleInput
	if !h.decode(w, r, &in) {
		return
	}
	roleID, err := shared.ParseUUID(in.RoleID, "roleId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	u, err := h.service.ChangeRole(r.Context(), ac.Principal, id, roleID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, userEnvelope{User: u})
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

func (h *Handler) userID(w http.ResponseWriter, ac rbac.AuthContext) (uuid.UUID, bool) {
	id, err := uuid.Parse(ac.Param("id"))
	if err != nil {
		httpx.RespondError(w, h.logger, errUserNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func filtersFromRequest(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	f := ListFilters{Search: q.Get("search")}
	f.Page, f.Limit = shared.PageFromQuery(q)
	var err error
	if f.RoleID, err = shared.ParseOptionalUUID(q.Get("roleId"), "roleId"); err != nil {
		return ListFilters{}, err
	}
	if f.ParishID, err = shared.ParseOptionalUUID(q.Get("parishId"), "parishId"); err != nil {
		return ListFilters{}, err
	}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return ListFilters{}, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "isActive must be true or false")
		}
		f.IsActive = &active
	}
	return f, nil
}
