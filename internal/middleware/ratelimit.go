package middleware

import (
	"context"
	"errors"
	"math"
	"strconv"

	"skinscope/internal/common"
	"skinscope/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Limiter учитывает попытку с адреса clientIP в области scope.
// nil - попытка разрешена; любая ошибка - отклонена.
type Limiter interface {
	Check(ctx context.Context, scope, clientIP string) error
}

// RateLimit ограничивает попытки по IP клиента. При отказе вызывается onLimited,
// который сам формирует ответ; цепочка после него прерывается.
// limiter == nil отключает ограничение.
func RateLimit(limiter Limiter, scope string, onLimited gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		err := limiter.Check(c.Request.Context(), scope, c.ClientIP())
		if err == nil {
			c.Next()
			return
		}

		var limited *ratelimit.LimitedError
		switch {
		case errors.As(err, &limited):
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
			log.Warn().Str("scope", scope).Str("ip", c.ClientIP()).Msg("Превышен лимит попыток")
		case errors.Is(err, common.ErrRateLimited):
			log.Warn().Str("scope", scope).Str("ip", c.ClientIP()).Msg("Превышен лимит попыток")
		default:
			log.Error().Err(err).Str("scope", scope).Msg("Лимитер недоступен, попытка отклонена")
		}
		onLimited(c)
		c.Abort()
	}
}
