package http

import (
	"net"
	"net/http"

	"github.com/go-chi/render"

	"urlshort/internal/ratelimit"
	"urlshort/pkg/response"
)

// rateLimit rejects requests exceeding the sliding-window budget for the
// caller's address with 429. Runs after RealIP so proxied requests are
// keyed by the originating client.
func rateLimit(limiter *ratelimit.SlidingWindow) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.RateLimitExceededResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}

	return r.RemoteAddr
}
