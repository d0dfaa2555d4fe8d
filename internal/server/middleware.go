package server

import (
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Logging logs one line per request with method, path, status, duration and visitor identity.
//
// 5xx responses are logged at error and 4xx at warn.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, _ = withRequestInfo(r)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start).Round(time.Microsecond),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				kv = append(kv, "request_id", id)
			}
			if identity := Identity(r.Context()); identity != "" {
				kv = append(kv, "identity", identity)
			}

			switch {
			case status >= 500:
				logger.Error("http request", kv...)
			case status >= 400:
				logger.Warn("http request", kv...)
			default:
				logger.Info("http request", kv...)
			}
		})
	}
}

// Recoverer turns a handler panic into a 500 response and logs the stack.
func Recoverer(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets response headers that keep pages from being sniffed or framed elsewhere.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request counts and latency by route pattern.
func Instrument(recorder metrics.Recorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			recorder.RecordHTTPRequest(RoutePattern(r), status, time.Since(start))
		})
	}
}

type visitorLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits requests per visitor identity, falling back to the client IP for requests without one.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	visitors map[string]*visitorLimiter
	now      func() time.Time
}

// NewRateLimiter creates a [RateLimiter] allowing perSecond requests with the given burst.
//
// Visitors idle for longer than idle are forgotten by [RateLimiter.Sweep].
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		visitors: make(map[string]*visitorLimiter),
		now:      time.Now,
	}
}

// Middleware rejects requests over the visitor's limit with 429 and a Retry-After header.
//
// It must run after the identity has been recorded with [WithIdentity].
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Identity(r.Context())
			if key == "" {
				key = clientIP(r)
			}

			if !rl.get(key).Allow() {
				retryAfter := 1
				if rl.limit > 0 {
					retryAfter = max(1, int(math.Ceil(1/float64(rl.limit))))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastAccess = rl.now()
	return v.limiter
}

// Sweep forgets visitors idle for longer than the configured idle duration and returns how many remain.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastAccess) > rl.idle {
			delete(rl.visitors, key)
		}
	}
	return len(rl.visitors)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
