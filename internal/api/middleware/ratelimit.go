package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/community-messaging/pkg/response"
)

// UserRateLimiter 按用户 email 分别限流
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	r        rate.Limit
	burst    int
	idle     time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserRateLimiter(perSecond float64, burst int) *UserRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserRateLimiter{
		limiters: make(map[string]*userLimiter),
		r:        rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (l *UserRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.r, l.burst)}
		l.limiters[key] = ul
		// 顺带清理长时间不活跃的用户
		if len(l.limiters)%1024 == 0 {
			for k, v := range l.limiters {
				if now.Sub(v.lastSeen) > l.idle && k != key {
					delete(l.limiters, k)
				}
			}
		}
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// RateLimit 需放在 Auth 之后；rate<=0 时不限流
func RateLimit(l *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.r <= 0 {
			c.Next()
			return
		}
		key := CurrentEmail(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			response.TooManyRequests(c, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
