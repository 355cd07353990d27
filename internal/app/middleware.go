package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/gpbmt-org/gpbmt/internal/observability"
	"github.com/gpbmt-org/gpbmt/internal/platform/httpx"
	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger       *slog.Logger
	Config       *Config
	SessionStore *shared.SessionStore
	CSRFManager  *shared.CSRFManager
	Metrics      *observability.Metrics
	// TokenParser verifies bearer tokens. Only a verified token lifts the
	// CSRF check on a request that also carries the session cookie.
	TokenParser rbac.TokenParser
	// CSRFExempt lists exact paths that skip the CSRF check.
	CSRFExempt []string
}

// MiddlewareStack installs the API middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	rateLimit := 120
	var origins []string
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			rateLimit = cfg.Config.RateLimitPerMinute
		}
		origins = cfg.Config.CORSAllowedOrigins
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", shared.CSRFHeader},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Compress(5),
		httprate.Limit(rateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		clientInfoMiddleware,
		csrfMiddleware(cfg),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

func clientInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.ContextWithClientInfo(r.Context(), shared.ClientInfoFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfMiddleware checks unsafe requests carrying the session cookie. Requests
// without a session, or with a bearer token that verifies, are left to the
// gate; an unverifiable bearer header does not lift the check.
func csrfMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	exempt := make(map[string]struct{}, len(cfg.CSRFExempt))
	for _, p := range cfg.CSRFExempt {
		exempt[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exempt[r.URL.Path]; ok || cfg.SessionStore == nil || cfg.CSRFManager == nil {
				next.ServeHTTP(w, r)
				return
			}
			sessionID := cfg.SessionStore.SessionID(r)
			if sessionID == "" || verifiedBearer(cfg.TokenParser, r) {
				next.ServeHTTP(w, r)
				return
			}
			if err := cfg.CSRFManager.Verify(sessionID, r.Header.Get(shared.CSRFHeader)); err != nil {
				cfg.Logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Error(w, http.StatusForbidden, "CSRF_INVALID", "missing or invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifiedBearer(parser rbac.TokenParser, r *http.Request) bool {
	token := rbac.BearerToken(r)
	if token == "" || parser == nil {
		return false
	}
	_, err := parser.Parse(token)
	return err == nil
}
