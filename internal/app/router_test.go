package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbmt-org/gpbmt/internal/parishes"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

type routerFixture struct {
	handler http.Handler
	csrf    *shared.CSRFManager
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	sessions := shared.NewSessionStore(nil, "gpbmt_session", "secret", 0, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	gate := rbac.NewGate(rbac.ResolverFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return nil, nil
	}), nil, nil)
	h := NewRouter(RouterParams{
		Config:          &Config{AppEnv: "test"},
		SessionStore:    sessions,
		CSRFManager:     csrf,
		ParishesHandler: parishes.NewHandler(nil, parishes.NewService(nil, nil, nil, nil), gate),
	})
	return routerFixture{handler: h, csrf: csrf}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestAPIRequiresAuthentication(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/parishes", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, rbac.CodeUnauthorized, errorCode(t, rec))
}

func TestCSRFAppliesToCookieSessions(t *testing.T) {
	f := newRouterFixture(t)
	post := func(mutate func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/parishes", strings.NewReader(`{"name":"Tân Định"}`))
		mutate(req)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "gpbmt_session", Value: "sid-1"})
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF_INVALID", errorCode(t, rec))

	// A valid token passes CSRF and reaches the gate.
	rec = post(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "gpbmt_session", Value: "sid-1"})
		r.Header.Set(shared.CSRFHeader, f.csrf.Token("sid-1"))
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An unverifiable bearer header does not lift the check.
	rec = post(func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "gpbmt_session", Value: "sid-1"})
		r.Header.Set("Authorization", "Bearer abc")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF_INVALID", errorCode(t, rec))

	rec = post(func(*http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFExemptPaths(t *testing.T) {
	csrf := shared.NewCSRFManager("csrf-secret")
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h = csrfMiddleware(MiddlewareConfig{
		Logger:       nil,
		SessionStore: shared.NewSessionStore(nil, "gpbmt_session", "secret", 0, false),
		CSRFManager:  csrf,
		CSRFExempt:   []string{"/api/v1/auth/login"},
	})(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.AddCookie(&http.Cookie{Name: "gpbmt_session", Value: "stale"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type tokenParserFunc func(token string) (*rbac.Principal, error)

func (f tokenParserFunc) Parse(token string) (*rbac.Principal, error) { return f(token) }

func TestCSRFWithSessionAndBearerResolvers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionStore(client, "gpbmt_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	admin := rbac.NewPrincipal(uuid.New(), "admin@gpbmt.org", "Admin", uuid.New(), rbac.RoleSuperAdmin, rbac.PermissionsForRole(rbac.RoleSuperAdmin), nil)
	created := httptest.NewRecorder()
	sid, err := sessions.Create(context.Background(), created, admin.Snapshot())
	require.NoError(t, err)

	apiClient := rbac.NewPrincipal(uuid.New(), "api@gpbmt.org", "API", uuid.New(), rbac.RoleAccountant, rbac.PermissionsForRole(rbac.RoleAccountant), nil)
	parser := tokenParserFunc(func(token string) (*rbac.Principal, error) {
		if token == "good" {
			return apiClient, nil
		}
		return nil, errors.New("token is malformed")
	})
	gate := rbac.NewGate(rbac.ChainResolver{
		rbac.BearerResolver{Parser: parser},
		rbac.SessionResolver{Store: sessions},
	}, nil, nil)

	calls := 0
	var seen *rbac.Principal
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Config:       &Config{AppEnv: "test"},
		SessionStore: sessions,
		CSRFManager:  csrf,
		TokenParser:  parser,
	}) {
		r.Use(mw)
	}
	r.Method(http.MethodPost, "/api/v1/parishes", gate.RequireAuthenticated(func(w http.ResponseWriter, _ *http.Request, ac rbac.AuthContext) {
		calls++
		seen = ac.Principal
		w.WriteHeader(http.StatusOK)
	}))

	post := func(mutate func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/parishes", strings.NewReader(`{}`))
		req.AddCookie(&http.Cookie{Name: "gpbmt_session", Value: sid})
		mutate(req)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post(func(req *http.Request) { req.Header.Set("Authorization", "Bearer garbage") })
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF_INVALID", errorCode(t, rec))
	assert.Zero(t, calls)

	rec = post(func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apiClient.ID, seen.ID)

	rec = post(func(req *http.Request) { req.Header.Set(shared.CSRFHeader, csrf.Token(sid)) })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, admin.ID, seen.ID)
}
