package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter is a token bucket per URL host. Buckets idle for longer than
// the ttl are evicted on a later call.
type HostLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*hostBucket
	swept   time.Time
	now     func() time.Time
}

type hostBucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewHostLimiter allows perSecond requests per host with the given burst.
// perSecond <= 0 disables limiting.
func NewHostLimiter(perSecond float64, burst int, ttl time.Duration) *HostLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &HostLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		buckets: make(map[string]*hostBucket),
		now:     time.Now,
	}
}

// Wait blocks until a request to rawURL's host may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return h.bucket(HostKey(rawURL)).Wait(ctx)
}

// Allow reports whether a request to rawURL's host may proceed now.
func (h *HostLimiter) Allow(rawURL string) bool {
	return h.bucket(HostKey(rawURL)).Allow()
}

// Len is the number of hosts currently tracked.
func (h *HostLimiter) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buckets)
}

func (h *HostLimiter) bucket(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if now.Sub(h.swept) > h.ttl {
		for key, b := range h.buckets {
			if now.Sub(b.lastUsed) > h.ttl {
				delete(h.buckets, key)
			}
		}
		h.swept = now
	}

	b, ok := h.buckets[host]
	if !ok {
		b = &hostBucket{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.buckets[host] = b
	}
	b.lastUsed = now
	return b.limiter
}
