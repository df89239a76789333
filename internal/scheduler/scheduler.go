// Package scheduler 提供定时任务功能
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portfolio-srv/internal/database"

	"github.com/robfig/cron/v3"
)

// GameEvictor 回收空闲拼图实例
type GameEvictor interface {
	EvictIdle(idle time.Duration) int
}

// SessionCleaner 清理空闲会话缓存
type SessionCleaner interface {
	CleanupIdle(idle time.Duration) int
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron     *cron.Cron
	store    database.Store
	games    GameEvictor
	sessions SessionCleaner
	idle     time.Duration
}

// New 创建新的调度器
func New(store database.Store, games GameEvictor, sessions SessionCleaner, idle time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		store:    store,
		games:    games,
		sessions: sessions,
		idle:     idle,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	// 每天凌晨 4 点执行数据清理
	if _, err := s.cron.AddFunc("0 4 * * *", func() {
		slog.Info("执行定时数据清理任务")
		if err := s.RunCleanupNow(context.Background()); err != nil {
			slog.Error("数据清理任务失败", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("注册清理任务失败: %w", err)
	}

	// 每小时回收空闲拼图实例与会话缓存
	if _, err := s.cron.AddFunc("0 * * * *", s.EvictIdle); err != nil {
		return fmt.Errorf("注册回收任务失败: %w", err)
	}

	s.cron.Start()
	slog.Info("定时任务调度器已启动")
	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("定时任务调度器已停止")
}

// EvictIdle 立即回收空闲实例
func (s *Scheduler) EvictIdle() {
	games := s.games.EvictIdle(s.idle)
	sessions := s.sessions.CleanupIdle(s.idle)
	slog.Info("回收空闲实例", "games", games, "sessions", sessions)
}

// RunCleanupNow 立即执行清理任务
func (s *Scheduler) RunCleanupNow(ctx context.Context) error {
	return database.RunCleanup(ctx, s.store)
}
