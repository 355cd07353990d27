package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when the session does not exist or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps login sessions in Redis behind an HttpOnly cookie.
type SessionStore struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionStore {
	return &SessionStore{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Create persists value as a new session and sets the session cookie.
func (s *SessionStore) Create(ctx context.Context, w http.ResponseWriter, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("shared: encode session: %w", err)
	}
	id := s.generateSessionID()
	if err := s.client.Set(ctx, s.redisKey(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("shared: store session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(s.ttl),
		MaxAge:   int(s.ttl.Seconds()),
	})
	return id, nil
}

// SessionID returns the session cookie value, or "" when absent.
func (s *SessionStore) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Load decodes the session payload into dest. Missing or expired sessions
// yield ErrSessionNotFound; other errors are storage faults.
func (s *SessionStore) Load(ctx context.Context, id string, dest any) error {
	if id == "" {
		return ErrSessionNotFound
	}
	payload, err := s.client.Get(ctx, s.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("shared: load session: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("shared: decode session: %w", err)
	}
	return nil
}

// Destroy deletes the request's session and expires the cookie.
func (s *SessionStore) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if id := s.SessionID(r); id != "" {
		if err := s.client.Del(ctx, s.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("shared: delete session: %w", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (s *SessionStore) CookieName() string {
	return s.cookieName
}

func (s *SessionStore) redisKey(id string) string {
	return "session:" + id
}

func (s *SessionStore) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(s.secret) > 0 {
		for i := range b {
			b[i] ^= s.secret[i%len(s.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
