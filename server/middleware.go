// Package server wraps the HTTP mux with Sangam's middleware chain and runs
// the listener.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/c360studio/sangam/metric"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so that the first listed runs outermost.
func Chain(h http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to a WebSocket upgrader. gorilla/websocket
// asserts http.Hijacker directly, so Unwrap alone is not enough.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", r.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err == nil && r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// WithRequestID assigns each request an id, reusing a client-supplied one.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// WithLogging logs one line per request and records request metrics.
// The route label is the matched mux pattern, so path ids don't explode
// label cardinality.
func WithLogging(logger *slog.Logger, m *metric.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			if m != nil {
				m.ObserveRequest(r.Pattern, r.Method, rec.code(), elapsed)
			}

			level := slog.LevelInfo
			if rec.code() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", r.Pattern,
				"status", rec.code(),
				"duration", elapsed,
				"request_id", RequestID(r.Context()))
		})
	}
}

// WithRecover turns handler panics into 500 responses.
func WithRecover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("Handler panic",
						"panic", v,
						"path", r.URL.Path,
						"request_id", RequestID(r.Context()),
						"stack", string(debug.Stack()))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// OriginMatcher reports whether browser origins are allowed. Patterns are
// doublestar globs matched against "host:port" (for example "localhost:*"
// or "*.sangam.np:443"), against "scheme://host:port" when the pattern names
// a scheme ("http://localhost:*"), or "*" for any origin.
type OriginMatcher struct {
	patterns []string
}

// NewOriginMatcher compiles the allowed origin patterns.
func NewOriginMatcher(patterns []string) (*OriginMatcher, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &url.Error{Op: "parse origin pattern", URL: p, Err: doublestar.ErrBadPattern}
		}
	}
	return &OriginMatcher{patterns: patterns}, nil
}

// Allowed reports whether origin (scheme://host[:port]) matches.
func (m *OriginMatcher) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "wss":
			host += ":443"
		default:
			host += ":80"
		}
	}
	full := u.Scheme + "://" + host
	for _, p := range m.patterns {
		if p == "*" {
			return true
		}
		target := host
		if strings.Contains(p, "://") {
			target = full
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}

// CheckOrigin is a WebSocket origin check: requests without an Origin
// header (non-browser clients) and allowed origins pass.
func (m *OriginMatcher) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || m.Allowed(origin)
}

// WithCORS answers preflight requests and sets CORS headers for allowed
// origins.
func WithCORS(m *OriginMatcher) Middleware {
	allowHeaders := strings.Join([]string{"Authorization", "Content-Type", RequestIDHeader}, ", ")
	allowMethods := strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && m.Allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", allowMethods)
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					h.Set("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
