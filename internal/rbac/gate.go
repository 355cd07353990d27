package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
)

// AuthContext is what a protected handler receives once every check passed.
type AuthContext struct {
	Principal *Principal
	Params    map[string]string
	Scope     ParishScope
}

// Param returns the named route parameter.
func (a AuthContext) Param(name string) string {
	return a.Params[name]
}

// AuthorizedHandler is an operation that runs only for authorized requests.
type AuthorizedHandler func(w http.ResponseWriter, r *http.Request, ac AuthContext)

// Guard inspects an authenticated principal and returns a denial to stop the
// request.
type Guard func(p *Principal) *Denial

// PermissionGuard denies principals whose snapshot does not satisfy req.
func PermissionGuard(req Requirement) Guard {
	return func(p *Principal) *Denial {
		if !req.SatisfiedBy(p.Permissions) {
			return Forbidden()
		}
		return nil
	}
}

// ParishAssignmentGuard denies parish scoped principals without a parish.
func ParishAssignmentGuard() Guard {
	return func(p *Principal) *Denial {
		if p.Assignment() == AssignmentMissing {
			return UnassignedParish()
		}
		return nil
	}
}

// DecisionObserver receives one outcome label per gate decision.
type DecisionObserver interface {
	ObserveAuthorization(outcome string)
}

// Gate protects handlers: it resolves the principal, then runs guards in
// order, and only then invokes the handler.
type Gate struct {
	resolver Resolver
	logger   *slog.Logger
	observer DecisionObserver
}

// NewGate constructs a Gate. observer may be nil.
func NewGate(resolver Resolver, logger *slog.Logger, observer DecisionObserver) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{resolver: resolver, logger: logger, observer: observer}
}

// RequireAuthenticated runs next for any authenticated principal.
func (g *Gate) RequireAuthenticated(next AuthorizedHandler) http.Handler {
	return g.Protect(next)
}

// RequirePermission runs next when the principal satisfies req.
func (g *Gate) RequirePermission(req Requirement, next AuthorizedHandler) http.Handler {
	return g.Protect(next, PermissionGuard(req))
}

// RequireAllPermissions runs next when the principal holds every code.
func (g *Gate) RequireAllPermissions(codes []Permission, next AuthorizedHandler) http.Handler {
	return g.Protect(next, PermissionGuard(AllOf(codes...)))
}

// RequireParishScope checks req (OR semantics) and then refuses parish scoped
// principals that have no parish. next receives the derived ParishScope.
func (g *Gate) RequireParishScope(req Requirement, next AuthorizedHandler) http.Handler {
	req.Mode = ModeAny
	return g.Protect(next, PermissionGuard(req), ParishAssignmentGuard())
}

// Protect authenticates the request and applies guards left to right. The
// first denial is written and next is never called.
func (g *Gate) Protect(next AuthorizedHandler, guards ...Guard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, denial, ok := g.authorize(w, r, guards)
		if !ok {
			return
		}
		if denial != nil {
			g.deny(w, r, p, denial)
			return
		}
		g.observe("allowed")
		r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		next(w, r, AuthContext{Principal: p, Params: routeParams(r), Scope: ScopeFor(p)})
	})
}

// Middleware is Protect for chi route groups. Downstream handlers read the
// principal with PrincipalFromContext.
func (g *Gate) Middleware(guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Protect(func(w http.ResponseWriter, r *http.Request, _ AuthContext) {
			next.ServeHTTP(w, r)
		}, guards...)
	}
}

func (g *Gate) authorize(w http.ResponseWriter, r *http.Request, guards []Guard) (*Principal, *Denial, bool) {
	ctx := r.Context()
	if ctx.Err() != nil {
		return nil, nil, false
	}
	p, err := g.resolver.Resolve(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, false
		}
		g.observe("error")
		g.logger.Error("resolve principal", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return nil, nil, false
	}
	if p == nil {
		return nil, Unauthenticated(), true
	}
	for _, guard := range guards {
		if d := guard(p); d != nil {
			return p, d, true
		}
	}
	return p, nil, true
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, p *Principal, d *Denial) {
	g.observe(d.Kind.String())
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("reason", d.Kind.String()),
	}
	if p != nil {
		attrs = append(attrs, slog.String("user_id", p.ID.String()), slog.String("role", string(p.Role)))
		g.logger.Warn("access denied", attrs...)
	} else {
		g.logger.Debug("access denied", attrs...)
	}
	WriteDenial(w, d)
}

func (g *Gate) observe(outcome string) {
	if g.observer != nil {
		g.observer.ObserveAuthorization(outcome)
	}
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return map[string]string{}
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if i < len(rctx.URLParams.Values) {
			params[key] = rctx.URLParams.Values[i]
		}
	}
	return params
}
