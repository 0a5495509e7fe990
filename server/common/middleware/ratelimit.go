package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"s4/server/common/transport/httpresp"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PrincipalLimiter keeps one token bucket per principal. Idle buckets are swept lazily.
type PrincipalLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewPrincipalLimiter(perMinute int) *PrincipalLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &PrincipalLimiter{
		visitors: map[string]*visitor{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

func (l *PrincipalLimiter) Allow(principal string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, id)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[principal]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[principal] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit must run after AuthRequired. A nil limiter lets everything through.
func RateLimit(l *PrincipalLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		principal, _ := PrincipalFrom(c)
		if !l.Allow(principal) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpresp.NewErrorResponse(httpresp.CodeRateLimited, httpresp.ErrTooManyRequests))
			return
		}
		c.Next()
	}
}
