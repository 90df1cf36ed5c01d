package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"admitcoach/scheduler/pkg/response"
)

// RateLimiter 滑动窗口计数器（Redis 实现见 pkg/redis）
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 预约写接口限流：已认证时按用户计数，否则按 IP
// limiter 为 nil 或出错时降级放行
func RateLimit(limiter RateLimiter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if uid := c.GetString("user_id"); uid != "" {
			subject = "user:" + uid
		}
		key := fmt.Sprintf("rate_limit:%s:%s", c.FullPath(), subject)

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("限流检查失败，降级放行", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			response.TooManyRequests(c, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
