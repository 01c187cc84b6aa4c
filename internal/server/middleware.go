package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/server/ratelimit"
)

type contextKey int

const requestIDKey contextKey = iota

// RequestID returns the id assigned to the request by [WithRequestLog], or ""
// outside a request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// WithRequestLog assigns a request id, echoed in the X-Request-ID header, and
// logs every request once it completes.
//
// A well formed X-Request-ID sent by the client is reused.
func WithRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		slog.InfoContext(ctx, "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"size", rec.size,
			"dur", time.Since(start).Round(time.Millisecond),
			"ip", clientIP(r),
			"req", id)
	})
}

// WithWriteLimit rejects mutating requests from a client that exceeded its
// budget in l. Reads are never limited. A nil l disables limiting.
func WithWriteLimit(l *ratelimit.Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		res := l.Allow("write:" + clientIP(r))
		ratelimit.WriteHeaders(w, res)
		if !res.Allowed {
			err := apierrors.RateLimited().WithDetail("retry_after", int(res.RetryAfter.Seconds()))
			writeError(r.Context(), w, err, 0, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// clientIP returns the originating client address, honoring X-Forwarded-For
// and X-Real-IP set by a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, ok := strings.Cut(addr, "]:"); ok {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, ok := strings.Cut(addr, ":"); ok {
		return host
	}
	return addr
}
