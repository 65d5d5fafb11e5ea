package middleware

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-wallet/pkg/web"
	"golang.org/x/time/rate"
)

// ErrRateLimited indicates that the caller sent too many requests.
var ErrRateLimited = errors.New("too many requests, please try again later")

// RateLimiter keeps a token bucket per authenticated user.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter returns RateLimiter that allows r requests per second with bursts of b
// for every user. A non-positive r disables limiting.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    b,
	}
}

func (rl *RateLimiter) limiter(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = l
	}

	return l
}

// Middleware returns gin middleware that answers 429 once the caller's bucket is empty.
// It has to run after AuthMiddleware.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		if rl.limit <= 0 {
			gctx.Next()
			return
		}

		if !rl.limiter(UserID(gctx)).Allow() {
			gctx.AbortWithStatusJSON(http.StatusTooManyRequests, web.Error(ErrRateLimited))
			return
		}

		gctx.Next()
	}
}
