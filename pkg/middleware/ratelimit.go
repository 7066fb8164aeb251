package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements a token bucket rate limiter per IP address
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	// Rate limiting configuration
	requestsPerMinute int
	limit             rate.Limit
	burst             int

	// Forwarding headers are honored only from these networks
	trustedProxies []netip.Prefix

	// Cleanup
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// visitor tracks rate limit state for a single IP
type visitor struct {
	limiter      *rate.Limiter
	lastRequest  time.Time
	requestCount int
}

// RateLimitStats describes the limiter state served on the debug mux
type RateLimitStats struct {
	ActiveIPs         int `json:"active_ips"`
	TotalRequests     int `json:"total_requests"`
	RequestsPerMinute int `json:"requests_per_min"`
	BurstSize         int `json:"burst_size"`
}

// NewRateLimiter creates a new rate limiter
// requestsPerMinute: number of requests allowed per minute per IP
// burstSize: maximum burst of requests allowed
// trustedProxies: peers whose X-Forwarded-For and X-Real-IP headers are believed
func NewRateLimiter(requestsPerMinute, burstSize int, trustedProxies ...netip.Prefix) *RateLimiter {
	return &RateLimiter{
		visitors:          make(map[string]*visitor),
		trustedProxies:    trustedProxies,
		requestsPerMinute: requestsPerMinute,
		limit:             rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:             burstSize,
		idleTimeout:       10 * time.Minute,
		cleanupInterval:   5 * time.Minute,
		lastCleanup:       time.Now(),
		now:               time.Now,
	}
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Periodic cleanup of old visitors
	if now.Sub(rl.lastCleanup) > rl.cleanupInterval {
		rl.cleanup(now)
	}

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastRequest = now

	if !v.limiter.AllowN(now, 1) {
		return false
	}
	v.requestCount++
	return true
}

// cleanup removes visitors that have been idle longer than idleTimeout
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.idleTimeout)
	for ip, v := range rl.visitors {
		if v.lastRequest.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
	rl.lastCleanup = now
}

// Stats returns a snapshot of the limiter
func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := RateLimitStats{
		ActiveIPs:         len(rl.visitors),
		RequestsPerMinute: rl.requestsPerMinute,
		BurstSize:         rl.burst,
	}
	for _, v := range rl.visitors {
		stats.TotalRequests += v.requestCount
	}
	return stats
}

// RateLimit creates HTTP middleware that enforces rate limiting
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := limiter.clientIP(r)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.requestsPerMinute))

			if !limiter.Allow(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded. Please try again later."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ParseTrustedProxies parses addresses and CIDR ranges. A bare address is
// treated as a single host.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// clientIP extracts the client IP the limit is keyed on. The peer address
// is used unless the peer is a trusted proxy, in which case the forwarding
// headers are consulted.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}

	if !rl.trusted(peer) {
		return peer
	}

	// Walk X-Forwarded-For from the nearest hop, skipping our own proxies
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !rl.trusted(hop) || i == 0 {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return peer
}

func (rl *RateLimiter) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, p := range rl.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
