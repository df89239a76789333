package database

import (
	"context"
	"log/slog"
	"time"
)

// StateRetention 访客状态保留时长
const StateRetention = 180 * 24 * time.Hour

// RunCleanup 执行所有清理操作
// 规则：删除超过保留期未更新的访客状态（会话标识、点赞集合、偏好）
func RunCleanup(ctx context.Context, store Store) error {
	startTime := time.Now()
	slog.Info("开始执行数据清理任务")

	count, err := store.PurgeState(ctx, startTime.Add(-StateRetention))
	if err != nil {
		slog.Error("清理访客状态失败", "error", err)
		return err
	}

	slog.Info("数据清理任务完成",
		"states", count,
		"duration", time.Since(startTime),
	)
	return nil
}
