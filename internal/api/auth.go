package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"fixly/internal/config"

	"golang.org/x/time/rate"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the caller identity injected by the gateway in front of this
// service. The gateway authenticates; we only read its headers.
type Principal struct {
	UserID string
	Role   string
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// HTTPAuth extracts the principal, checks the optional service API key and
// applies per-caller rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.RequireAPIKey {
			if err := a.checkAPIKey(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		principal, err := a.extractPrincipal(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if err := a.checkRateLimit(r, principal); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *HTTPAuth) extractPrincipal(r *http.Request) (Principal, error) {
	userHeader := headerOrDefault(a.cfg.Auth.HeaderUserID, "x-user-id")
	roleHeader := headerOrDefault(a.cfg.Auth.HeaderUserRole, "x-user-role")

	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		return Principal{}, fmt.Errorf("missing %s header", userHeader)
	}

	role := strings.ToUpper(strings.TrimSpace(r.Header.Get(roleHeader)))

	return Principal{UserID: userID, Role: role}, nil
}

func (a *HTTPAuth) checkAPIKey(r *http.Request) error {
	keyHeader := headerOrDefault(a.cfg.Auth.HeaderAPIKey, "x-api-key")

	apiKey := strings.TrimSpace(r.Header.Get(keyHeader))
	if apiKey == "" {
		return fmt.Errorf("missing %s header", keyHeader)
	}

	for known := range a.clients {
		if subtle.ConstantTimeCompare([]byte(known), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("invalid api key")
}

func (a *HTTPAuth) checkRateLimit(r *http.Request, principal Principal) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := principal.UserID
	if key == "" {
		key = a.remoteHost(r)
	}

	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func headerOrDefault(name, fallback string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fallback
	}
	return name
}
