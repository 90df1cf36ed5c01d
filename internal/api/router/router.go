package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"admitcoach/scheduler/config"
	"admitcoach/scheduler/internal/api/handler"
	"admitcoach/scheduler/internal/api/middleware"
	"admitcoach/scheduler/pkg/jwt"
)

// Setup 初始化并返回 Gin 路由引擎；limiter 为 nil 时预约接口不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, limiter middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	coachOnly := middleware.RoleAuth("coach", "admin")

	// ── API v1（全部需要认证）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 活动类型模块
		eventTypes := v1.Group("/event-types")
		{
			eventTypes.GET("", h.EventType.ListEventTypes)
			eventTypes.GET("/:id", h.EventType.GetEventType)
			eventTypes.PUT("", coachOnly, h.EventType.UpsertEventType)
			eventTypes.POST("/:id/deactivate", coachOnly, h.EventType.DeactivateEventType)
		}

		// 可预约规则模块
		rules := v1.Group("/availability-rules")
		{
			rules.GET("", h.AvailabilityRule.ListRules)
			rules.GET("/:id", h.AvailabilityRule.GetRule)
			rules.POST("", coachOnly, h.AvailabilityRule.CreateRule)
			rules.PUT("/:id", coachOnly, h.AvailabilityRule.UpdateRule)
			rules.POST("/:id/deactivate", coachOnly, h.AvailabilityRule.DeactivateRule)
			rules.DELETE("/:id", coachOnly, h.AvailabilityRule.DeleteRule)
		}

		// 日历视图
		v1.GET("/coaches/:id/calendar", h.Calendar.GetCalendar)

		// 预约模块
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", middleware.RateLimit(limiter, cfg.Server.ReserveLimit, time.Minute, logger), h.Booking.Reserve)
			bookings.GET("", h.Booking.ListBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.POST("/:id/confirm", coachOnly, h.Booking.ConfirmBooking)
			bookings.POST("/:id/cancel", h.Booking.CancelBooking) // 预约人或教练（Service 层鉴权）
			bookings.POST("/:id/reschedule", h.Booking.RescheduleBooking)
			bookings.POST("/:id/no-show", coachOnly, h.Booking.MarkNoShow)
			bookings.PUT("/:id/notifications", middleware.RoleAuth("admin"), h.Booking.MarkNotified)
		}
	}

	return r
}
