package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gobarber/appointments/libs/auth"
	"github.com/gobarber/appointments/libs/httpx"
)

type routeConfig struct {
	JWTSecret       string
	AppointmentsURL *url.URL
	Transport       http.RoundTripper
	Logger          *slog.Logger
	// Now is the clock used for token expiry; nil means time.Now.
	Now func() time.Time
}

func registerRoutes(mux *http.ServeMux, cfg routeConfig) {
	proxy := httputil.NewSingleHostReverseProxy(cfg.AppointmentsURL)
	if cfg.Transport != nil {
		proxy.Transport = cfg.Transport
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		cfg.Logger.Error("upstream request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"upstream", cfg.AppointmentsURL.Host,
			"err", err,
		)
		httpx.WriteError(w, http.StatusBadGateway, "Service unavailable")
	}

	protected := requireAuth(proxy, cfg.JWTSecret, cfg.Now)
	mux.Handle("/appointments", protected)
	mux.Handle("/appointments/", protected)
}

// requireAuth verifies the bearer token and forwards the caller id as X-User-Id. Identity
// headers sent by the client are always dropped.
func requireAuth(next http.Handler, jwtSecret string, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(httpx.UserIDHeader)

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "Token not provided")
			return
		}

		claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), jwtSecret, now())
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "Token invalid")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "Token invalid")
			return
		}

		r.Header.Del("Authorization")
		r.Header.Set(httpx.UserIDHeader, strconv.FormatInt(userID, 10))
		next.ServeHTTP(w, r)
	})
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must include scheme and host", raw)
	}
	return u, nil
}
