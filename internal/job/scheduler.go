package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"admitcoach/scheduler/config"
)

// runTimeout 单次清扫的最长执行时间
const runTimeout = 2 * time.Minute

// BookingSweeper 后台任务依赖的预约台账操作
type BookingSweeper interface {
	CompleteElapsed(ctx context.Context) (int, error)
	SendDueReminders(ctx context.Context) (int, error)
}

// Scheduler 预约台账的定时清扫任务
//   - sweep_cron：已结束的 confirmed 预约 → completed
//   - reminder_cron：发布即将开始预约的提醒事件（为空时不注册）
type Scheduler struct {
	cron    *cron.Cron
	sweeper BookingSweeper
	logger  *zap.Logger
}

// NewScheduler 解析 cron 表达式并注册任务，不会启动
func NewScheduler(cfg *config.SchedulingConfig, sweeper BookingSweeper, logger *zap.Logger) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("排期时区无效: %w", err)
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		sweeper: sweeper,
		logger:  logger.Named("job"),
	}

	if _, err := s.cron.AddFunc(cfg.SweepCron, s.completeElapsed); err != nil {
		return nil, fmt.Errorf("注册完成清扫任务失败: %w", err)
	}
	if cfg.ReminderCron != "" {
		if _, err := s.cron.AddFunc(cfg.ReminderCron, s.sendReminders); err != nil {
			return nil, fmt.Errorf("注册提醒任务失败: %w", err)
		}
	}
	return s, nil
}

// Start 在后台 goroutine 中运行任务
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("定时任务已启动", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop 停止调度并等待正在执行的任务结束，或直到 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("定时任务已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── 任务 ──

func (s *Scheduler) completeElapsed() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweeper.CompleteElapsed(ctx)
	if err != nil {
		s.logger.Error("完成清扫失败", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("已完成到期预约", zap.Int("count", n), zap.Duration("latency", time.Since(start)))
	}
}

func (s *Scheduler) sendReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := s.sweeper.SendDueReminders(ctx)
	if err != nil {
		s.logger.Error("发送提醒失败", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("已发布预约提醒", zap.Int("count", n))
	}
}
