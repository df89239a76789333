package game

import (
	"context"
	"slices"

	"portfolio-srv/internal/database"
)

// WinnerAdmin 获胜者列表的管理操作
type WinnerAdmin interface {
	ListWinners(ctx context.Context) ([]database.Winner, error)
	DeleteWinner(ctx context.Context, id string) error
}

// SortWinners 按创建时间倒序（稳定）
func SortWinners(list []database.Winner) []database.Winner {
	out := slices.Clone(list)
	slices.SortStableFunc(out, func(a, b database.Winner) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// WinnersView 管理员可见的获胜者列表，访客得到空列表
func WinnersView(list []database.Winner, admin bool) []database.Winner {
	if !admin {
		return []database.Winner{}
	}
	return SortWinners(list)
}

// ListWinners 读取并生成视图
func ListWinners(ctx context.Context, store WinnerAdmin, admin bool) ([]database.Winner, error) {
	if !admin {
		return []database.Winner{}, nil
	}
	list, err := store.ListWinners(ctx)
	if err != nil {
		return nil, err
	}
	return WinnersView(list, true), nil
}

// DeleteWinner 删除获胜者；非管理员静默忽略，未确认返回 ErrConfirmationRequired
func DeleteWinner(ctx context.Context, store WinnerAdmin, admin bool, id string, confirmed bool) error {
	if !admin {
		return nil
	}
	if !confirmed {
		return database.ErrConfirmationRequired
	}
	return store.DeleteWinner(ctx, id)
}
