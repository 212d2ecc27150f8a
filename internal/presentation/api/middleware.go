package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/json"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/presentation/utils"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (app *Application) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := app.verifier.FromRequest(r)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "Missing bearer token"
			}
			json.WriteError(w, http.StatusUnauthorized, err, msg)
			return
		}

		if projectID := chi.URLParam(r, "projectId"); projectID != "" && !claims.CanAccess(projectID) {
			app.logger.Warn(logging.RequestResponse, logging.ExternalService, "project access denied", map[logging.ExtraKey]any{
				logging.ProjectID: projectID,
				logging.ActorID:   claims.ActorID(),
			})
			json.WriteError(w, http.StatusForbidden, nil, "Project not accessible")
			return
		}

		next.ServeHTTP(w, r.WithContext(utils.WithClaims(r.Context(), claims)))
	})
}

// rateLimiterMiddleware buckets by actor once authenticated, by client
// address otherwise.
func (app *Application) rateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceKey := "ip:" + app.ratelimiter.GetSourceKey(r)
		if actorID := utils.ActorID(r.Context()); actorID != "" {
			sourceKey = "actor:" + actorID
		}

		maxBurst := app.ratelimiter.GetMaxBurst()
		if !app.ratelimiter.Allow(sourceKey) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxBurst))
			w.Header().Set("X-RateLimit-Remaining", "0")

			app.logger.Warn(logging.General, logging.RateLimiting, "rate limit exceeded", map[logging.ExtraKey]any{
				"source":       sourceKey,
				logging.Path:   r.URL.Path,
				logging.Method: r.Method,
			})

			json.WriteRateLimitError(w, 1)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxBurst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(app.ratelimiter.Remaining(sourceKey)))

		next.ServeHTTP(w, r)
	})
}

func (app *Application) enableCors(next http.Handler) http.Handler {
	allowAll := len(app.config.HTTP.AllowedOrigins) == 0 || slices.Contains(app.config.HTTP.AllowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "" && allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && (allowAll || slices.Contains(app.config.HTTP.AllowedOrigins, origin)):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (app *Application) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		extra := map[logging.ExtraKey]any{
			logging.Method:     r.Method,
			logging.Path:       r.URL.Path,
			logging.StatusCode: wrapped.statusCode,
			logging.Latency:    time.Since(start).Milliseconds(),
			logging.BodySize:   wrapped.bytes,
			logging.ClientIp:   r.RemoteAddr,
			"request_id":       middleware.GetReqID(r.Context()),
		}

		switch {
		case wrapped.statusCode >= 500:
			app.logger.Error(logging.RequestResponse, logging.ExternalService, "request completed with server error", extra)
		case wrapped.statusCode >= 400:
			app.logger.Warn(logging.RequestResponse, logging.ExternalService, "request completed with client error", extra)
		default:
			app.logger.Info(logging.RequestResponse, logging.ExternalService, "request completed", extra)
		}
	})
}

func (app *Application) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		app.metrics.ObserveRequest(r.Method, strconv.Itoa(wrapped.statusCode), time.Since(start).Seconds())
	})
}
