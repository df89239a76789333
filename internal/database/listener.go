package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ChangeChannel 数据变更通知频道（由迁移中的触发器发出）
const ChangeChannel = "portfolio_changes"

// tableCollections 表名到集合的映射
var tableCollections = map[string]Collection{
	"feedback":     CollectionFeedback,
	"game_winners": CollectionWinners,
}

// Listen 监听其他实例产生的变更并刷新订阅，直到 ctx 结束
func (p *Postgres) Listen(ctx context.Context, hub *Hub) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("获取监听连接失败: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("订阅变更通知失败: %w", err)
	}
	slog.Info("变更监听已启动", "channel", ChangeChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				slog.Info("变更监听已停止")
				return nil
			}
			return fmt.Errorf("等待变更通知失败: %w", err)
		}

		c, ok := tableCollections[n.Payload]
		if !ok {
			slog.Warn("未知的变更通知", "payload", n.Payload)
			continue
		}
		hub.Refresh(ctx, c)
	}
}
