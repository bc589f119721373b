package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP. A bucket refills at
// limit tokens per window and holds at most limit tokens.
type ipRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	lastGC  time.Time
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perWindow int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		limit:   rate.Limit(float64(perWindow) / window.Seconds()),
		burst:   perWindow,
		buckets: make(map[string]*bucket),
		idleTTL: 2 * window,
		now:     time.Now,
	}
}

// allow consumes one token for ip. When the bucket is empty it reports how
// long until the next token.
func (rl *ipRateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastGC) > rl.idleTTL {
		rl.sweep(now)
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops buckets idle long enough to have refilled completely.
func (rl *ipRateLimiter) sweep(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idleTTL {
			delete(rl.buckets, ip)
		}
	}
	rl.lastGC = now
}

// RateLimit applies the global per-IP request budget.
func (a *API) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractClientIPWithProxies(r, a.trustedProxies)
		if ok, retryAfter := a.globalLimiter.allow(ip); !ok {
			a.metrics.rateLimitHit("global")
			writeRateLimited(w, retryAfter, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginRateLimit applies the tighter per-IP login budget.
func (a *API) LoginRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractClientIPWithProxies(r, a.trustedProxies)
		if ok, retryAfter := a.loginLimiter.allow(ip); !ok {
			a.metrics.rateLimitHit("login")
			a.audit.log(AuditLoginRateLimited, r)
			writeRateLimited(w, retryAfter, "Too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// extractClientIPWithProxies returns the client IP. Proxy headers are only
// believed when the direct peer falls inside trustedProxies.
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}

		if fwd := strings.TrimSpace(r.Header.Get("Forwarded")); fwd != "" {
			for _, elem := range strings.Split(fwd, ",") {
				for _, param := range strings.Split(elem, ";") {
					param = strings.TrimSpace(param)
					if !strings.HasPrefix(strings.ToLower(param), "for=") {
						continue
					}
					if ip, ok := parseIPCandidate(param[4:]); ok {
						return ip
					}
				}
			}
		}
	}
	return remoteIP
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	// fe80::1%eth0
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	return "", false
}

// ParseTrustedProxies parses CIDRs or bare IPs. Blank entries are skipped.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
