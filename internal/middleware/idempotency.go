package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-wallet/pkg/lockpkg"
	"github.com/go-petr/pet-wallet/pkg/web"
	"github.com/rs/zerolog"
)

// IdempotencyKeyHeader is the header clients use to make a request safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrRequestInFlight indicates that a request with the same idempotency key is still being processed.
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// IdempotencyLock rejects a request while another one with the same user and idempotency key
// is being processed. It has to run after AuthMiddleware.
//
// The lock only short-circuits concurrent duplicates. Completed duplicates are recognized by
// the transfer service, so the request proceeds unlocked when the locker is unreachable.
func IdempotencyLock(locker lockpkg.Locker, ttl time.Duration) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		key := gctx.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			gctx.Next()
			return
		}

		ctx := gctx.Request.Context()
		l := zerolog.Ctx(ctx)

		lock, err := locker.Acquire(ctx, "idempotency:"+UserID(gctx)+":"+key, ttl)
		if err != nil {
			if errors.Is(err, lockpkg.ErrNotAcquired) {
				l.Info().Str("idempotency_key", key).Msg("duplicate request in flight")
				gctx.AbortWithStatusJSON(http.StatusConflict, web.Error(ErrRequestInFlight))

				return
			}

			l.Warn().Err(err).Msg("idempotency lock unavailable")
			gctx.Next()

			return
		}

		defer func() {
			if err := locker.Release(ctx, lock); err != nil {
				l.Warn().Err(err).Msg("idempotency lock release failed")
			}
		}()

		gctx.Next()
	}
}
