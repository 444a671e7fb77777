package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Default burst/sustained rate for a single client's control-frame
// stream on a worker Connect session. Generous enough to absorb a burst
// of chat messages without false-positive drops, tight enough to stop a
// misbehaving client from pegging a pump goroutine.
const (
	DefaultClientBurst = 50
	DefaultClientRPS   = 20
)

// ConnLimiter hands out one token-bucket limiter per connected client,
// independent of the manager's FixedWindow. Exceeding it does not close
// the stream — the caller is expected to drop the offending frame and
// keep pumping, per the design note that this guards worker CPU from an
// already-admitted chatty client rather than gating new connections.
type ConnLimiter struct {
	mu      sync.Mutex
	burst   int
	rps     float64
	buckets map[string]*rate.Limiter
}

// NewConnLimiter builds a ConnLimiter with the given sustained rate
// (requests/sec) and burst size. A zero rps/burst falls back to the
// package defaults.
func NewConnLimiter(rps float64, burst int) *ConnLimiter {
	if rps <= 0 {
		rps = DefaultClientRPS
	}
	if burst <= 0 {
		burst = DefaultClientBurst
	}
	return &ConnLimiter{
		burst:   burst,
		rps:     rps,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether clientKey (typically "user_id:channel_id") may
// send another control frame right now, creating its bucket on first
// use.
func (c *ConnLimiter) Allow(clientKey string) bool {
	c.mu.Lock()
	lim, ok := c.buckets[clientKey]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.rps), c.burst)
		c.buckets[clientKey] = lim
	}
	c.mu.Unlock()

	return lim.Allow()
}

// Remove drops clientKey's bucket, called once the client's Connect
// session ends.
func (c *ConnLimiter) Remove(clientKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, clientKey)
}
