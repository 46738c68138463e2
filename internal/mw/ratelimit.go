package mw

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter for each client address.
type IPRateLimiter struct {
	ips     map[string]*visitor
	mu      *sync.RWMutex
	r       rate.Limit
	b       int
	idleTTL time.Duration
	now     func() time.Time
}

// NewIPRateLimiter creates a new IPRateLimiter. Limiters unused for idleTTL
// are dropped by Evict.
func NewIPRateLimiter(r rate.Limit, b int, idleTTL time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		ips:     make(map[string]*visitor),
		mu:      &sync.RWMutex{},
		r:       r,
		b:       b,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// GetLimiter returns the rate limiter for an IP address.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.ips[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = v
	}
	v.lastSeen = i.now()
	return v.limiter
}

// Evict drops limiters idle for longer than the TTL.
func (i *IPRateLimiter) Evict() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-i.idleTTL)
	n := 0
	for ip, v := range i.ips {
		if v.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.ips)
}

// ClientKey returns the address used for limiting. When header is set (for
// example X-Forwarded-For behind a proxy) its first entry wins.
func ClientKey(c *gin.Context, header string) string {
	if header != "" {
		if v := c.GetHeader(header); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return c.ClientIP()
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(limiter *IPRateLimiter, header string) gin.HandlerFunc {
	var (
		evictMu   sync.Mutex
		lastEvict time.Time
	)
	return func(c *gin.Context) {
		if limiter.idleTTL > 0 {
			evictMu.Lock()
			if now := limiter.now(); now.Sub(lastEvict) > limiter.idleTTL {
				lastEvict = now
				evictMu.Unlock()
				limiter.Evict()
			} else {
				evictMu.Unlock()
			}
		}

		if !limiter.GetLimiter(ClientKey(c, header)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
