package rbac_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type countingObserver struct {
	outcomes []string
}

func (c *countingObserver) ObserveAuthorization(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func staticResolver(p *rbac.Principal) rbac.Resolver {
	return rbac.ResolverFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return p, nil
	})
}

func principalFor(role rbac.Role, parish *rbac.ParishRef) *rbac.Principal {
	return rbac.NewPrincipal(uuid.New(), "user@gpbmt.test", "Test User", uuid.New(), role, rbac.PermissionsForRole(role), parish)
}

func serve(t *testing.T, h http.Handler) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/resource", nil))
	var body envelope
	if rec.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGateRejectsMissingPrincipal(t *testing.T) {
	calls := 0
	gate := rbac.NewGate(staticResolver(nil), nil, nil)
	handlers := []http.Handler{
		gate.RequireAuthenticated(func(http.ResponseWriter, *http.Request, rbac.AuthContext) { calls++ }),
		gate.RequirePermission(rbac.AnyOf(rbac.PermParishesRead), func(http.ResponseWriter, *http.Request, rbac.AuthContext) { calls++ }),
		gate.RequireAllPermissions([]rbac.Permission{rbac.PermUsersRead}, func(http.ResponseWriter, *http.Request, rbac.AuthContext) { calls++ }),
		gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersRead), func(http.ResponseWriter, *http.Request, rbac.AuthContext) { calls++ }),
	}
	for _, h := range handlers {
		rec, body := serve(t, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, body.Success)
		assert.Equal(t, rbac.CodeUnauthorized, body.Error.Code)
	}
	assert.Zero(t, calls)
}

func TestGateDistinguishesUnauthorizedFromForbidden(t *testing.T) {
	var called bool
	next := func(http.ResponseWriter, *http.Request, rbac.AuthContext) { called = true }

	accountant := principalFor(rbac.RoleAccountant, nil)
	gate := rbac.NewGate(staticResolver(accountant), nil, nil)

	rec, body := serve(t, gate.RequirePermission(rbac.AnyOf(rbac.PermUsersRead), next))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, rbac.CodeForbidden, body.Error.Code)
	assert.False(t, called)

	rec, _ = serve(t, gate.RequirePermission(rbac.AnyOf(rbac.PermUsersRead, rbac.PermPayrollsManage), next))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestGateAllPermissions(t *testing.T) {
	manager := principalFor(rbac.RoleDioceseManager, nil)
	gate := rbac.NewGate(staticResolver(manager), nil, nil)
	next := func(w http.ResponseWriter, _ *http.Request, _ rbac.AuthContext) { w.WriteHeader(http.StatusOK) }

	rec, _ := serve(t, gate.RequireAllPermissions([]rbac.Permission{rbac.PermParishesRead, rbac.PermParishesWrite}, next))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(t, gate.RequireAllPermissions([]rbac.Permission{rbac.PermParishesWrite, rbac.PermParishesDelete}, next))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, rbac.CodeForbidden, body.Error.Code)
}

func TestParishScopeDeniesUnassignedPriestAfterPermissionCheck(t *testing.T) {
	priest := principalFor(rbac.RoleParishPriest, nil)
	require.Equal(t, rbac.AssignmentMissing, priest.Assignment())

	observer := &countingObserver{}
	gate := rbac.NewGate(staticResolver(priest), nil, observer)
	called := false
	rec, body := serve(t, gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersRead), func(http.ResponseWriter, *http.Request, rbac.AuthContext) {
		called = true
	}))

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, rbac.CodeForbidden, body.Error.Code)
	assert.Equal(t, rbac.UnassignedParish().Message, body.Error.Message)
	assert.NotEqual(t, rbac.Forbidden().Message, body.Error.Message)
	assert.Equal(t, []string{"unassigned_parish"}, observer.outcomes)
}

func TestParishScopeChecksPermissionFirst(t *testing.T) {
	priest := principalFor(rbac.RoleParishPriest, nil)
	gate := rbac.NewGate(staticResolver(priest), nil, nil)

	rec, body := serve(t, gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersDelete), func(http.ResponseWriter, *http.Request, rbac.AuthContext) {}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, rbac.Forbidden().Message, body.Error.Message)
}

func TestParishScopeHandsScopeToHandler(t *testing.T) {
	parish := &rbac.ParishRef{ID: uuid.New(), Name: "Giáo xứ Tân Định"}
	secretary := principalFor(rbac.RoleParishSecretary, parish)
	gate := rbac.NewGate(staticResolver(secretary), nil, nil)

	var got rbac.AuthContext
	rec, _ := serve(t, gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersRead), func(w http.ResponseWriter, _ *http.Request, ac rbac.AuthContext) {
		got = ac
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, secretary, got.Principal)
	assert.True(t, got.Scope.Restricted())
	assert.Equal(t, parish.ID, got.Scope.ParishID())
}

func TestDioceseManagerScenario(t *testing.T) {
	manager := principalFor(rbac.RoleDioceseManager, nil)
	gate := rbac.NewGate(staticResolver(manager), nil, nil)

	var scope rbac.ParishScope
	rec, _ := serve(t, gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersRead), func(w http.ResponseWriter, _ *http.Request, ac rbac.AuthContext) {
		scope = ac.Scope
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, scope.Restricted())

	rec, _ = serve(t, gate.RequirePermission(rbac.AnyOf(rbac.PermParishesDelete), func(http.ResponseWriter, *http.Request, rbac.AuthContext) {}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDioceseManagerSnapshotCounts(t *testing.T) {
	perms := rbac.NewPermissionSet(
		rbac.PermParishesRead, rbac.PermParishesWrite,
		rbac.PermTransactionsRead, rbac.PermTransactionsCreate, rbac.PermTransactionsApprove,
		rbac.PermPayrollsRead, rbac.PermPayrollsApprove,
		rbac.PermAssetsRead, rbac.PermAssetsWrite,
	)
	require.Len(t, perms, 9)
	manager := rbac.NewPrincipal(uuid.New(), "manager@gpbmt.test", "Manager", uuid.New(), rbac.RoleDioceseManager, perms, nil)
	gate := rbac.NewGate(staticResolver(manager), nil, nil)

	calls := 0
	handler := func(w http.ResponseWriter, _ *http.Request, _ rbac.AuthContext) {
		calls++
		w.WriteHeader(http.StatusOK)
	}

	rec, body := serve(t, gate.RequirePermission(rbac.AnyOf(rbac.PermUsersRead), handler))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, rbac.CodeForbidden, body.Error.Code)
	assert.Zero(t, calls)

	rec, _ = serve(t, gate.RequirePermission(rbac.AnyOf(rbac.PermParishesWrite), handler))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestResolverErrorIsNotUnauthenticated(t *testing.T) {
	resolver := rbac.ResolverFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return nil, errors.New("redis: connection refused")
	})
	gate := rbac.NewGate(resolver, nil, nil)
	called := false
	rec, body := serve(t, gate.RequireAuthenticated(func(http.ResponseWriter, *http.Request, rbac.AuthContext) { called = true }))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}

func TestCancelledRequestNeverReachesHandler(t *testing.T) {
	gate := rbac.NewGate(staticResolver(principalFor(rbac.RoleSuperAdmin, nil)), nil, nil)
	called := false
	h := gate.RequireAuthenticated(func(http.ResponseWriter, *http.Request, rbac.AuthContext) { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/resource", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, called)
}

func TestGatePassesRouteParamsAndPrincipal(t *testing.T) {
	admin := principalFor(rbac.RoleSuperAdmin, nil)
	gate := rbac.NewGate(staticResolver(admin), nil, nil)

	var ac rbac.AuthContext
	var fromCtx *rbac.Principal
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/users/{id}", gate.RequirePermission(rbac.AnyOf(rbac.PermUsersRead), func(w http.ResponseWriter, req *http.Request, got rbac.AuthContext) {
		ac = got
		fromCtx = rbac.PrincipalFromContext(req.Context())
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", ac.Param("id"))
	assert.Same(t, admin, fromCtx)
}

func TestGateMiddlewareForRouteGroups(t *testing.T) {
	gate := rbac.NewGate(staticResolver(principalFor(rbac.RoleAccountant, nil)), nil, nil)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware(rbac.PermissionGuard(rbac.AnyOf(rbac.PermAuditLogsRead))))
		r.Get("/audit-logs", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit-logs", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdenticalInputsYieldIdenticalDenials(t *testing.T) {
	gate := rbac.NewGate(staticResolver(principalFor(rbac.RoleParishSecretary, nil)), nil, nil)
	h := gate.RequireParishScope(rbac.AnyOf(rbac.PermParishionersRead), func(http.ResponseWriter, *http.Request, rbac.AuthContext) {})

	first, _ := serve(t, h)
	second, _ := serve(t, h)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}
