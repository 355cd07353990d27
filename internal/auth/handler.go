package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*rbac.Principal, error)
}

// HandlerDeps collects the collaborators of Handler.
type HandlerDeps struct {
	Logger         *slog.Logger
	Service        Authenticator
	Tokens         *TokenIssuer
	Sessions       *shared.SessionStore
	CSRF           *shared.CSRFManager
	Audit          audit.Recorder
	Gate           *rbac.Gate
	LoginPerMinute int
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   Authenticator
	tokens    *TokenIssuer
	sessions  *shared.SessionStore
	csrf      *shared.CSRFManager
	audit     audit.Recorder
	gate      *rbac.Gate
	loginRate int
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Handler{
		logger:    logger,
		service:   deps.Service,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		csrf:      deps.CSRF,
		audit:     rec,
		gate:      deps.Gate,
		loginRate: deps.LoginPerMinute,
		validator: httpx.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h.loginRate > 0 {
		r.With(httprate.Limit(h.loginRate, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).Post("/login", h.handleLogin)
	} else {
		r.Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
	r.Method(http.MethodGet, "/me", h.gate.RequireAuthenticated(h.handleMe))
	r.Method(http.MethodGet, "/access", h.gate.RequireAuthenticated(h.handleAccess))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserView is the principal as presented to clients.
type UserView struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	RoleID      string          `json:"roleId"`
	Role        string          `json:"role"`
	Permissions []string        `json:"permissions"`
	Parish      *rbac.ParishRef `json:"parish"`
	Assignment  string          `json:"parishAssignment"`
}

// NewUserView renders p.
func NewUserView(p *rbac.Principal) UserView {
	return UserView{
		ID:          p.ID.String(),
		Email:       p.Email,
		Name:        p.Name,
		RoleID:      p.RoleID.String(),
		Role:        string(p.Role),
		Permissions: p.Permissions.Strings(),
		Parish:      p.Parish,
		Assignment:  p.Assignment().String(),
	}
}

type loginResponse struct {
	User        UserView  `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CSRFToken   string    `json:"csrfToken"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	principal, err := h.service.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(principal)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sessionID, err := h.sessions.Create(ctx, w, principal.Snapshot())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}

	_ = h.audit.Record(ctx, audit.NewEntry(ctx, principal, audit.ActionLogin, "User", principal.ID.String(), nil, nil))
	h.logger.Info("login", slog.String("user_id", principal.ID.String()), slog.String("role", string(principal.Role)))

	httpx.OK(w, loginResponse{
		User:        NewUserView(principal),
		AccessToken: token,
		ExpiresAt:   expiresAt.UTC(),
		CSRFToken:   h.csrf.Token(sessionID),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.logger.Warn("destroy session", slog.Any("error", err))
	}
	httpx.Message(w, "logged out")
}

type navItem struct {
	Path     string   `json:"path"`
	Requires []string `json:"requires"`
}

type meResponse struct {
	User       UserView  `json:"user"`
	Navigation []navItem `json:"navigation"`
}

func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, ac rbac.AuthContext) {
	p := ac.Principal
	nav := make([]navItem, 0)
	for _, rule := range rbac.RouteRules() {
		if !rbac.CanAccessRoute(p.Permissions, rule.Prefix) {
			continue
		}
		nav = append(nav, navItem{Path: rule.Prefix, Requires: permissionStrings(rule.Codes)})
	}
	httpx.OK(w, meResponse{User: NewUserView(p), Navigation: nav})
}

type accessResponse struct {
	Path     string   `json:"path"`
	Required []string `json:"required"`
	Allowed  bool     `json:"allowed"`
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request, ac rbac.AuthContext) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httpx.RespondError(w, h.logger, shared.NewCodedError(shared.ErrValidation, "VALIDATION_ERROR", "path is required"))
		return
	}
	httpx.OK(w, accessResponse{
		Path:     path,
		Required: permissionStrings(rbac.RequiredPermissionsForRoute(path)),
		Allowed:  rbac.CanAccessRoute(ac.Principal.Permissions, path),
	})
}

func permissionStrings(codes []rbac.Permission) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
