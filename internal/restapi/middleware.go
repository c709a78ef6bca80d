package restapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kenobot/kenobot/internal/apierr"
	"github.com/kenobot/kenobot/internal/ratelimit"
)

const bearerPrefix = "Bearer "

// dummyToken is compared against when the real header is absent or of a
// different length than the configured token, so the branch below always
// performs a constant-time comparison of equal-length buffers and a
// missing/short header takes the same time as a full mismatch.
var dummyToken = []byte(strings.Repeat("x", 64))

// bearerAuth rejects any request whose Authorization header does not
// carry the exact configured token. An empty configured token rejects
// every request (mirrors the webhook's "no secret configured" stance).
// A length mismatch still performs a dummy constant-time compare rather
// than short-circuiting, so rejection takes the same time either way.
func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			given, hasPrefix := strings.CutPrefix(header, bearerPrefix)

			var match bool
			if len(given) == len(want) {
				match = subtle.ConstantTimeCompare([]byte(given), want) == 1
			} else {
				subtle.ConstantTimeCompare(dummyToken, dummyToken)
			}

			if token == "" || !hasPrefix || !match {
				writeAPIErr(w, apierr.Unauthorized("invalid or missing bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cors applies a single configurable allowed origin to every response and
// short-circuits preflight requests.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit enforces limiter's per-IP sliding window ahead of auth, so an
// unauthenticated flood is still throttled.
func rateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, retryAfter := limiter.Allow(ip, time.Now())
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeAPIErr(w, apierr.New(apierr.CodeRateLimited, "too many requests", "retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller's address, stripping any port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
