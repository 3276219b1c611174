package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// searchRequestCost is the number of tokens a selection or fit request
	// takes from its client's bucket; every other route takes one.
	searchRequestCost = 5
	// clientIdleTTL is how long a client's bucket survives without requests.
	clientIdleTTL = 10 * time.Minute
)

type rateLimiter interface {
	Allow(r *http.Request) bool
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tokenBucketLimiter keeps one token bucket per client address and charges
// search routes more than cheap reads.
type tokenBucketLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientBucket
	lastSweep time.Time

	now func() time.Time
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) *tokenBucketLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &tokenBucketLimiter{
		limit:   rate.Limit(ratePerSecond),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *tokenBucketLimiter) Allow(r *http.Request) bool {
	if l == nil {
		return true
	}

	now := l.now()
	key := clientKey(r)

	l.mu.Lock()
	l.sweep(now)
	bucket, ok := l.clients[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = bucket
	}
	bucket.lastSeen = now
	l.mu.Unlock()

	// A search never costs more than a full bucket, otherwise a small burst
	// would lock search routes out entirely.
	return bucket.limiter.AllowN(now, min(requestCost(r), l.burst))
}

// sweep drops idle clients at most once per clientIdleTTL. Callers hold mu.
func (l *tokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < clientIdleTTL {
		return
	}
	l.lastSweep = now
	for key, bucket := range l.clients {
		if now.Sub(bucket.lastSeen) >= clientIdleTTL {
			delete(l.clients, key)
		}
	}
}

func (l *tokenBucketLimiter) clientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func requestCost(r *http.Request) int {
	if r.Method != http.MethodPost {
		return 1
	}
	switch {
	case r.URL.Path == "/api/select",
		r.URL.Path == "/api/plan",
		r.URL.Path == "/api/fit",
		strings.HasPrefix(r.URL.Path, "/api/fit/"):
		return searchRequestCost
	default:
		return 1
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
