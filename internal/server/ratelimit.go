package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inland-taipen/teamchat/internal/config"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per remote address. Buckets idle
// for longer than idle are swept on a later lookup.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*visitor
	cfg       config.HTTPRateLimitConfig
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*visitor)
	}
	now := p.clock()
	p.sweep(now)
	if v, ok := p.m[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 20
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 40
	}
	v := &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst), lastSeen: now}
	p.m[key] = v
	return v.limiter
}

// sweep drops idle buckets at most once per idle period. p.mu must be held.
func (p *limiterPool) sweep(now time.Time) {
	idle := p.idle
	if idle <= 0 {
		idle = limiterIdleTTL
	}
	if now.Sub(p.lastSweep) < idle {
		return
	}
	p.lastSweep = now
	for key, v := range p.m {
		if now.Sub(v.lastSeen) >= idle {
			delete(p.m, key)
		}
	}
}

func (p *limiterPool) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Allow(remoteIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
