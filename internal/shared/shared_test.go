package shared

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldSearch(t *testing.T) {
	assert.Equal(t, "nguyen van duc", FoldSearch("  Nguyễn   Văn ĐỨC "))
	assert.Equal(t, "giao xu thanh tam", FoldSearch("Giáo Xứ Thánh Tâm"))
	assert.Equal(t, "", FoldSearch("   "))
}

func TestNullableUUID(t *testing.T) {
	id := uuid.New()
	var body struct {
		Parish NullableUUID `json:"parish"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{}`), &body))
	assert.False(t, body.Parish.Set)

	require.NoError(t, json.Unmarshal([]byte(`{"parish":null}`), &body))
	assert.True(t, body.Parish.Set)
	assert.Nil(t, body.Parish.Ptr())

	body.Parish = NullableUUID{}
	require.NoError(t, json.Unmarshal([]byte(`{"parish":"`+id.String()+`"}`), &body))
	require.NotNil(t, body.Parish.Ptr())
	assert.Equal(t, id, *body.Parish.Ptr())

	err := json.Unmarshal([]byte(`{"parish":"nope"}`), &body)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseOptionalUUID(t *testing.T) {
	got, err := ParseOptionalUUID("", "parish")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseOptionalUUID("x", "parish")
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "VALIDATION_ERROR", coded.Code)
}

func TestPagination(t *testing.T) {
	page, limit := PageFromQuery(url.Values{"page": {"-3"}, "limit": {"1000"}})
	assert.Equal(t, 1, page)
	assert.Equal(t, MaxPageSize, limit)

	meta := NewPagination(3, 20, 41)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, 40, Offset(3, 20))
	assert.Equal(t, 0, NewPagination(1, 20, 0).TotalPages)
}

func TestCSRFManager(t *testing.T) {
	m := NewCSRFManager("secret")
	token := m.Token("sid")
	assert.NoError(t, m.Verify("sid", token))
	assert.ErrorIs(t, m.Verify("other", token), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.Verify("sid", ""), ErrCSRFTokenMissing)
	assert.NotEqual(t, token, NewCSRFManager("another").Token("sid"))
}

func TestSessionStoreLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewSessionStore(client, "sid", "secret", time.Hour, false)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	id, err := store.Create(ctx, rec, map[string]string{"user": "u-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, id, store.SessionID(req))

	var got map[string]string
	require.NoError(t, store.Load(ctx, id, &got))
	assert.Equal(t, "u-1", got["user"])

	mr.FastForward(2 * time.Hour)
	assert.ErrorIs(t, store.Load(ctx, id, &got), ErrSessionNotFound)

	id, err = store.Create(ctx, httptest.NewRecorder(), map[string]string{})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	out := httptest.NewRecorder()
	require.NoError(t, store.Destroy(ctx, out, req))
	assert.ErrorIs(t, store.Load(ctx, id, &got), ErrSessionNotFound)
	assert.Equal(t, -1, out.Result().Cookies()[0].MaxAge)
}
