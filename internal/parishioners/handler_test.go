package parishioners

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
)

type envelope struct {
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

func newRouter(svc ParishionerService, as *rbac.Principal) http.Handler {
	gate := rbac.NewGate(rbac.ResolverFunc(func(context.Context, *http.Request) (*rbac.Principal, error) {
		return as, nil
	}), nil, nil)
	r := chi.NewRouter()
	r.Route("/parishioners", NewHandler(nil, svc, gate).MountRoutes)
	return r
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerListScoped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, f.own, "Anna")
	f.seed(t, f.other, "Bao")
	h := newRouter(f.svc, f.priest)

	status, env := call(t, h, http.MethodGet, "/parishioners", "")
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Parishioners []Parishioner `json:"parishioners"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Parishioners, 1)
	assert.Equal(t, "Anna", data.Parishioners[0].FullName)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)

	status, env = call(t, h, http.MethodGet, "/parishioners?parish="+f.other.String(), "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, rbac.CodeForbidden, env.Error.Code)

	status, _ = call(t, h, http.MethodGet, "/parishioners?gender=OTHER", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerUnassignedSecretaryIsDenied(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f.svc, principal(rbac.RoleParishSecretary, nil))

	status, env := call(t, h, http.MethodGet, "/parishioners", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, rbac.CodeForbidden, env.Error.Code)
}

func TestHandlerCreateValidates(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f.svc, f.priest)

	status, env := call(t, h, http.MethodPost, "/parishioners", `{"fullName":"A","gender":"X"}`)
	require.Equal(t, http.StatusBadRequest, status)
	paths := []string{}
	for _, d := range env.Error.Details {
		paths = append(paths, d.Path)
	}
	assert.ElementsMatch(t, []string{"fullName", "gender"}, paths)

	status, env = call(t, h, http.MethodPost, "/parishioners", `{"fullName":"Maria Lan","gender":"FEMALE"}`)
	require.Equal(t, http.StatusCreated, status)
	var data struct {
		Parishioner Parishioner `json:"parishioner"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, f.own, data.Parishioner.Parish.ID)
}

func TestHandlerDeleteRequiresPermission(t *testing.T) {
	f := newFixture(t)
	pr := f.seed(t, f.own, "Anna")

	status, _ := call(t, newRouter(f.svc, f.priest), http.MethodDelete, "/parishioners/"+pr.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, status)

	status, env := call(t, newRouter(f.svc, f.admin), http.MethodDelete, "/parishioners/"+pr.ID.String(), "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = call(t, newRouter(f.svc, f.admin), http.MethodGet, "/parishioners/not-an-id", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
