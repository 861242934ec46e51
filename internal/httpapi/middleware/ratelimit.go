package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

type visitors struct {
	mu    sync.Mutex
	m     map[string]*visitor
	limit rate.Limit
	burst int
}

func (v *visitors) allow(key string) bool {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	vis := v.m[key]
	if vis == nil {
		vis = &visitor{lim: rate.NewLimiter(v.limit, v.burst)}
		v.m[key] = vis
	}
	vis.seen = now

	// evict idle entries so the map does not grow unbounded
	if len(v.m) > 1024 {
		for k, old := range v.m {
			if now.Sub(old.seen) > visitorTTL {
				delete(v.m, k)
			}
		}
	}
	return vis.lim.Allow()
}

// RateLimit limits requests per remote IP using a token bucket.
// Example: RateLimit(120, 60) => 120 req/min with burst 60.
// A non-positive rate disables limiting.
func RateLimit(reqPerMin int, burst int) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	v := &visitors{
		m:     make(map[string]*visitor),
		limit: rate.Limit(float64(reqPerMin) / 60.0),
		burst: burst,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.allow(clientIP(r)) {
				denyJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// honor X-Forwarded-For if behind a proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
