package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"copyforge/internal/ratelimit"
	"copyforge/internal/types"
)

// RateLimit returns middleware enforcing one named policy per client
// address. Each policy keeps an independent in-memory budget; state resets
// on restart, which is an accepted scoping limitation.
//
// Every response carries the standard headers:
//   - X-RateLimit-Limit: maximum requests in the window.
//   - X-RateLimit-Remaining: requests left in the current window.
//   - X-RateLimit-Reset: Unix timestamp when the window resets.
//
// Rejections additionally carry Retry-After and a 429 envelope.
//
// For CountFailuresOnly policies (auth attempts) the middleware admits
// without consuming and records a failure only when the downstream response
// is 4xx, so successful logins never deplete the budget.
func (s *Server) RateLimit(policy ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientAddr(r)
			result := s.Limiter.Allow(policy, addr)

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				s.Logger.Warn("rate limit exceeded",
					slog.String("policy", policy.Name),
					slog.String("client_addr", addr),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(types.ErrCodeRateLimit),
						Message:   "rate limit exceeded, retry after the reset time",
						RequestID: types.GetRequestID(r.Context()),
					},
				})
				return
			}

			if !policy.CountFailuresOnly {
				next.ServeHTTP(w, r)
				return
			}

			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rc, r)

			// Only client errors count as failed attempts. 5xx means we
			// broke, not them.
			if rc.statusCode >= 400 && rc.statusCode < 500 {
				s.Limiter.RecordFailure(policy, addr)
			}
		})
	}
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers.
func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// clientAddr extracts the client address used as the rate-limit key. The
// service runs behind a trusted proxy that sets X-Forwarded-For; the first
// entry is the originating client. Falls back to the socket address.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
