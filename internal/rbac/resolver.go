package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Resolver derives the principal of a request. (nil, nil) means the request
// is not authenticated; an error means the lookup itself failed.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Principal, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, r *http.Request) (*Principal, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*Principal, error) {
	return f(ctx, r)
}

// SessionResolver reads the principal snapshot stored at login.
type SessionResolver struct {
	Store  *shared.SessionStore
	Logger *slog.Logger
}

// Resolve implements Resolver.
func (s SessionResolver) Resolve(ctx context.Context, r *http.Request) (*Principal, error) {
	id := s.Store.SessionID(r)
	if id == "" {
		return nil, nil
	}
	var snap Snapshot
	if err := s.Store.Load(ctx, id, &snap); err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("rbac: resolve session: %w", err)
	}
	p, err := snap.Principal()
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("discarding unreadable session", slog.Any("error", err))
		}
		return nil, nil
	}
	return p, nil
}

// TokenParser turns a bearer token into a principal.
type TokenParser interface {
	Parse(token string) (*Principal, error)
}

// BearerResolver authenticates "Authorization: Bearer" tokens.
type BearerResolver struct {
	Parser TokenParser
	Logger *slog.Logger
}

// Resolve implements Resolver. Invalid or expired tokens are treated as no
// credentials at all.
func (b BearerResolver) Resolve(_ context.Context, r *http.Request) (*Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, nil
	}
	p, err := b.Parser.Parse(token)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Debug("rejecting bearer token", slog.Any("error", err))
		}
		return nil, nil
	}
	return p, nil
}

// BearerToken extracts the token of an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ChainResolver tries each resolver in order. The first principal wins and the
// first error aborts.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(ctx context.Context, r *http.Request) (*Principal, error) {
	for _, res := range c {
		if res == nil {
			continue
		}
		p, err := res.Resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}
