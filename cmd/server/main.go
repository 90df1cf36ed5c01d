package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"admitcoach/scheduler/config"
	"admitcoach/scheduler/internal/api/handler"
	"admitcoach/scheduler/internal/api/middleware"
	"admitcoach/scheduler/internal/api/router"
	"admitcoach/scheduler/internal/job"
	"admitcoach/scheduler/internal/repository"
	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/database"
	"admitcoach/scheduler/pkg/jwt"
	applogger "admitcoach/scheduler/pkg/logger"
	"admitcoach/scheduler/pkg/mq"
	"admitcoach/scheduler/pkg/obs"
	"admitcoach/scheduler/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log, cfg.Tracing.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Scheduling.Timezone),
	)

	// 3. 链路追踪（未启用时为空实现）
	shutdownTracer, err := obs.InitTracer(context.Background(), &cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("初始化链路追踪失败", zap.Error(err))
	}

	// 4. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 4.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 5. 连接 Redis（可选：失败时预约接口不限流，幂等键不生效）
	var (
		limiter middleware.RateLimiter
		idem    service.IdempotencyStore
	)
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，限流与幂等键将不可用", zap.Error(err))
		rdb = nil
	} else {
		limiter = rdb
		idem = rdb
	}

	// 6. 连接 RabbitMQ（可选：未启用时不发布预约事件）
	var publisher service.EventPublisher
	var mqPub *mq.Publisher
	if cfg.RabbitMQ.Enabled {
		mqPub, err = mq.NewPublisher(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn("RabbitMQ 连接失败，预约事件将不会发布", zap.Error(err))
		} else {
			publisher = mqPub
		}
	}

	// 7. 初始化 JWT 管理器（仅校验）
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 8. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc, err := service.NewService(cfg, repo, publisher, idem, logger)
	if err != nil {
		logger.Fatal("初始化服务失败", zap.Error(err))
	}
	h := handler.NewHandler(svc)

	// 9. 后台任务：完成到期预约 + 发送提醒
	sched, err := job.NewScheduler(&cfg.Scheduling, svc.Booking, logger)
	if err != nil {
		logger.Fatal("初始化定时任务失败", zap.Error(err))
	}
	sched.Start()

	// 10. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, limiter, logger)

	// 11. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 12. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 等待正在执行的清扫任务结束
	if err := sched.Stop(ctx); err != nil {
		logger.Warn("定时任务未能按时停止", zap.Error(err))
	}

	if mqPub != nil {
		if err := mqPub.Close(); err != nil {
			logger.Warn("关闭 RabbitMQ 连接失败", zap.Error(err))
		}
	}

	if rdb != nil {
		rdb.Close()
	}

	if sqlDB != nil {
		sqlDB.Close()
	}

	if err := shutdownTracer(ctx); err != nil {
		logger.Warn("关闭链路追踪失败", zap.Error(err))
	}

	logger.Info("服务器已关闭")
}
