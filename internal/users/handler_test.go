package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total int `json:"total"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Details []struct {
			Path string `json:"path"`
		} `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, actor *rbac.Principal) (chi.Router, *memRepo) {
	t.Helper()
	svc, repo, _ := newTestService()
	gate := rbac.NewGate(rbac.ResolverFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return actor, nil
	}), nil, nil)
	r := chi.NewRouter()
	r.Route("/users", NewHandler(nil, svc, gate).MountRoutes)
	return r, repo
}

func call(t *testing.T, r http.Handler, method, path string, body any) (int, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerCreateAndGet(t *testing.T) {
	r, repo := newRouter(t, admin())

	status, env := call(t, r, http.MethodPost, "/users", map[string]any{
		"email":    "new@gpbmt.org",
		"password": "secret1",
		"name":     "New User",
		"phone":    "+84 90-123",
		"roleId":   repo.roleID(rbac.RoleAccountant).String(),
	})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		User User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, env = call(t, r, http.MethodGet, "/users/"+created.User.ID.String(), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = call(t, r, http.MethodGet, "/users/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = call(t, r, http.MethodGet, "/users?limit=1", nil)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)
}

func TestHandlerValidation(t *testing.T) {
	r, _ := newRouter(t, admin())

	status, env := call(t, r, http.MethodPost, "/users", map[string]any{
		"email": "nope", "password": "123", "name": "A", "phone": "abc",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	paths := map[string]bool{}
	for _, d := range env.Error.Details {
		paths[d.Path] = true
	}
	for _, p := range []string{"email", "password", "name", "phone", "roleId"} {
		assert.True(t, paths[p], p)
	}

	status, _ = call(t, r, http.MethodGet, "/users?isActive=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerPermissions(t *testing.T) {
	accountant := rbac.NewPrincipal(uuid.New(), "acct@gpbmt.org", "Acct", uuid.New(), rbac.RoleAccountant, rbac.PermissionsForRole(rbac.RoleAccountant), nil)
	r, _ := newRouter(t, accountant)

	status, env := call(t, r, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, rbac.CodeForbidden, env.Error.Code)

	status, _ = call(t, r, http.MethodDelete, "/users/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestHandlerSelfDeactivation(t *testing.T) {
	actor := admin()
	r, _ := newRouter(t, actor)

	status, env := call(t, r, http.MethodDelete, "/users/"+actor.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestHandlerResetPasswordWithoutBody(t *testing.T) {
	r, repo := newRouter(t, admin())
	id := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), NewUser{ID: id, Email: "r@gpbmt.org", Name: "Rr", RoleID: repo.roleID(rbac.RoleAccountant)}))

	status, env := call(t, r, http.MethodPost, "/users/"+id.String()+"/reset-password", nil)
	require.Equal(t, http.StatusOK, status)
	var res ResetPasswordResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Len(t, res.TemporaryPassword, 12)

	status, _ = call(t, r, http.MethodPost, "/users/"+id.String()+"/reset-password", map[string]string{"newPassword": "abc"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerChangeRoleUnknownRole(t *testing.T) {
	r, repo := newRouter(t, admin())
	id := uuid.New()
	require.NoError(t, repo.Insert(context.Background(), NewUser{ID: id, Email: "c@gpbmt.org", Name: "Cc", RoleID: repo.roleID(rbac.RoleAccountant)}))

	status, env := call(t, r, http.MethodPatch, "/users/"+id.String()+"/role", map[string]string{"roleId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
