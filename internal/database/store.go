package database

import (
	"context"
	"fmt"
	"time"
)

// Store 远程记录存储
// 变更方法遇到不存在的ID时返回 ErrNotFound
type Store interface {
	CreateFeedback(ctx context.Context, in NewFeedback) (*Feedback, error)
	ListFeedback(ctx context.Context) ([]Feedback, error)
	IncrementLikes(ctx context.Context, id string) error
	ApproveFeedback(ctx context.Context, id string) error
	ToggleStar(ctx context.Context, id string) error
	DeleteFeedback(ctx context.Context, id string) error

	CreateWinner(ctx context.Context, in NewWinner) (*Winner, error)
	ListWinners(ctx context.Context) ([]Winner, error)
	DeleteWinner(ctx context.Context, id string) error

	GetState(ctx context.Context, sessionID, key string) (string, bool, error)
	SetState(ctx context.Context, sessionID, key, value string) error
	PurgeState(ctx context.Context, before time.Time) (int64, error)

	Close()
}

// 存储驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Options 打开存储所需参数
type Options struct {
	Driver     string
	DSN        string // postgres
	SQLitePath string // sqlite
}

// Open 按驱动打开存储并执行迁移
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		pg, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case DriverSQLite:
		lite, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := lite.Migrate(ctx); err != nil {
			lite.Close()
			return nil, err
		}
		return lite, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", opts.Driver)
	}
}

// snapshotOf 读取集合完整内容
func snapshotOf(ctx context.Context, s Store, c Collection) (Snapshot, error) {
	snap := Snapshot{Collection: c}
	var err error
	switch c {
	case CollectionFeedback:
		snap.Feedback, err = s.ListFeedback(ctx)
	case CollectionWinners:
		snap.Winners, err = s.ListWinners(ctx)
	default:
		err = fmt.Errorf("未知的集合: %s", c)
	}
	return snap, err
}
