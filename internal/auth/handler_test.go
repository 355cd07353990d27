package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gpbmt-org/gpbmt/internal/audit"
	"github.com/gpbmt-org/gpbmt/internal/auth"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
	_ "github.com/gpbmt-org/gpbmt/testing"
)

type stubRepo struct {
	users   map[string]*auth.User
	err     error
	touched []uuid.UUID
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	s.touched = append(s.touched, id)
	return nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type fixture struct {
	router   chi.Router
	repo     *stubRepo
	sessions *shared.SessionStore
	tokens   *auth.TokenIssuer
	audit    *recordingAudit
}

func newUser(t *testing.T, email, password string, role rbac.Role, parishID *uuid.UUID) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test " + string(role),
		RoleID:       uuid.New(),
		RoleName:     string(role),
		ParishID:     parishID,
		ParishName:   "Giáo xứ Thánh Gia",
		IsActive:     true,
	}
}

func newFixture(t *testing.T, users ...*auth.User) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{users: map[string]*auth.User{}}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	sessions := shared.NewSessionStore(client, "gpbmt_session", "secret", time.Hour, false)
	tokens := auth.NewTokenIssuer("token-secret-token-secret-token", "gpbmt", time.Hour)
	gate := rbac.NewGate(rbac.ChainResolver{
		rbac.SessionResolver{Store: sessions},
		rbac.BearerResolver{Parser: tokens},
	}, nil, nil)
	rec := &recordingAudit{}

	h := auth.NewHandler(auth.HandlerDeps{
		Service:  auth.NewService(repo, nil),
		Tokens:   tokens,
		Sessions: sessions,
		CSRF:     shared.NewCSRFManager("csrf"),
		Audit:    rec,
		Gate:     gate,
	})
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)
	return &fixture{router: r, repo: repo, sessions: sessions, tokens: tokens, audit: rec}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func loginRequest(email, password string) *http.Request {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type loginData struct {
	User struct {
		ID          string   `json:"id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
		Assignment  string   `json:"parishAssignment"`
	} `json:"user"`
	AccessToken string `json:"accessToken"`
	CSRFToken   string `json:"csrfToken"`
}

func TestLoginSuccess(t *testing.T) {
	parishID := uuid.New()
	u := newUser(t, "secretary@gpbmt.org", "correct-horse", rbac.RoleParishSecretary, &parishID)
	f := newFixture(t, u)

	rec, env := f.do(t, loginRequest(u.Email, "correct-horse"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var data loginData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, u.ID.String(), data.User.ID)
	assert.Equal(t, "PARISH_SECRETARY", data.User.Role)
	assert.Equal(t, "assigned", data.User.Assignment)
	assert.ElementsMatch(t, rbac.PermissionsForRole(rbac.RoleParishSecretary).Strings(), data.User.Permissions)
	assert.NotEmpty(t, data.CSRFToken)

	p, err := f.tokens.Parse(data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "gpbmt_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	assert.Equal(t, []uuid.UUID{u.ID}, f.repo.touched)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, audit.ActionLogin, f.audit.entries[0].Action)
}

func TestLoginFailures(t *testing.T) {
	inactive := newUser(t, "gone@gpbmt.org", "password-1", rbac.RoleAccountant, nil)
	inactive.IsActive = false
	active := newUser(t, "acct@gpbmt.org", "password-1", rbac.RoleAccountant, nil)
	f := newFixture(t, inactive, active)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"unknown email", loginRequest("nobody@gpbmt.org", "password-1"), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"wrong password", loginRequest(active.Email, "password-2"), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"inactive", loginRequest(inactive.Email, "password-1"), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"invalid email", loginRequest("not-an-email", "x"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{")), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := f.do(t, tc.req)
			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
	assert.Empty(t, f.audit.entries)
}

func TestLoginRepositoryFaultIsInternal(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("connection reset")

	rec, env := f.do(t, loginRequest("a@gpbmt.org", "whatever"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}

func TestMeWithBearerToken(t *testing.T) {
	u := newUser(t, "acct@gpbmt.org", "password-1", rbac.RoleAccountant, nil)
	f := newFixture(t, u)
	token, _, err := f.tokens.Issue(u.Principal())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Navigation []struct {
			Path string `json:"path"`
		} `json:"navigation"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	paths := make([]string, 0, len(data.Navigation))
	for _, n := range data.Navigation {
		paths = append(paths, n.Path)
	}
	assert.Contains(t, paths, "/dashboard/finance")
	assert.Contains(t, paths, "/dashboard/hr/payrolls")
	assert.NotContains(t, paths, "/dashboard/users")
	assert.NotContains(t, paths, "/dashboard/audit-logs")
}

func TestMeWithSessionCookie(t *testing.T) {
	u := newUser(t, "admin@gpbmt.org", "password-1", rbac.RoleSuperAdmin, nil)
	f := newFixture(t, u)

	rec, _ := f.do(t, loginRequest(u.Email, "password-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec, env := f.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, rbac.CodeUnauthorized, env.Error.Code)
}

func TestAccessReportsRouteDecision(t *testing.T) {
	parishID := uuid.New()
	u := newUser(t, "priest@gpbmt.org", "password-1", rbac.RoleParishPriest, &parishID)
	f := newFixture(t, u)
	token, _, err := f.tokens.Issue(u.Principal())
	require.NoError(t, err)

	check := func(path string) (int, bool, []string) {
		req := httptest.NewRequest(http.MethodGet, "/auth/access?path="+path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec, env := f.do(t, req)
		var data struct {
			Allowed  bool     `json:"allowed"`
			Required []string `json:"required"`
		}
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(env.Data, &data))
		}
		return rec.Code, data.Allowed, data.Required
	}

	status, allowed, required := check("/dashboard/parishioners/123")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, allowed)
	assert.Equal(t, []string{"parishioners.read"}, required)

	_, allowed, _ = check("/dashboard/hr/payrolls")
	assert.False(t, allowed)

	_, allowed, required = check("/dashboard")
	assert.True(t, allowed)
	assert.Empty(t, required)

	status, _, _ = check("")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogoutClearsSession(t *testing.T) {
	u := newUser(t, "admin@gpbmt.org", "password-1", rbac.RoleSuperAdmin, nil)
	f := newFixture(t, u)
	rec, _ := f.do(t, loginRequest(u.Email, "password-1"))
	cookies := rec.Result().Cookies()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec, env := f.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	me := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	for _, c := range cookies {
		me.AddCookie(c)
	}
	rec, _ = f.do(t, me)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
