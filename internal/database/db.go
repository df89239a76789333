package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres PostgreSQL 存储
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres 初始化数据库连接池
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析数据库连接配置失败: %w", err)
	}

	cpus := int32(runtime.NumCPU())
	poolConfig.MaxConns = cpus * 2 // 设置最大连接数为 cpu 数 * 2
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("创建数据库连接池失败: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	slog.Info("数据库连接成功", "driver", DriverPostgres)
	return &Postgres{pool: pool}, nil
}

// Migrate 执行数据库迁移
func (p *Postgres) Migrate(ctx context.Context) error {
	// 确保迁移历史表存在
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("创建迁移历史表失败: %w", err)
	}

	rows, err := p.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return err
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return err
	}
	appliedSet := make(map[int]bool, len(applied))
	for _, v := range applied {
		appliedSet[v] = true
	}

	all, err := readMigrations(migrationsFS, "migrations/postgres")
	if err != nil {
		return err
	}

	for _, m := range pendingMigrations(all, appliedSet) {
		slog.Info("执行迁移", "version", m.Version, "name", m.Name)

		err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("执行迁移 %d_%s 失败: %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("记录迁移历史失败: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("迁移完成", "version", m.Version, "name", m.Name)
	}

	return nil
}

// CreateFeedback 创建留言，时间戳由数据库赋值
func (p *Postgres) CreateFeedback(ctx context.Context, in NewFeedback) (*Feedback, error) {
	f := Feedback{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		SessionID:  in.SessionID,
		ClientDate: in.ClientDate,
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO feedback (id, name, email, message, session_id, client_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, f.ID, f.Name, f.Email, f.Message, f.SessionID, f.ClientDate).Scan(&f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFeedback 获取全部留言（排序由调用方完成）
func (p *Postgres) ListFeedback(ctx context.Context) ([]Feedback, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::TEXT, name, email, message, likes, approved, is_starred,
		       session_id, client_date, created_at
		FROM feedback
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]Feedback, 0, 64)
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(
			&f.ID, &f.Name, &f.Email, &f.Message, &f.Likes, &f.Approved, &f.IsStarred,
			&f.SessionID, &f.ClientDate, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

// IncrementLikes 原子递增点赞数
func (p *Postgres) IncrementLikes(ctx context.Context, id string) error {
	return p.execOne(ctx, `UPDATE feedback SET likes = likes + 1 WHERE id = $1`, id)
}

// ApproveFeedback 审核通过（幂等）
func (p *Postgres) ApproveFeedback(ctx context.Context, id string) error {
	return p.execOne(ctx, `UPDATE feedback SET approved = TRUE WHERE id = $1`, id)
}

// ToggleStar 原子切换置顶
func (p *Postgres) ToggleStar(ctx context.Context, id string) error {
	return p.execOne(ctx, `UPDATE feedback SET is_starred = NOT is_starred WHERE id = $1`, id)
}

// DeleteFeedback 删除留言
func (p *Postgres) DeleteFeedback(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM feedback WHERE id = $1`, id)
}

// CreateWinner 创建获胜者记录
func (p *Postgres) CreateWinner(ctx context.Context, in NewWinner) (*Winner, error) {
	w := Winner{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		ClientDate: in.ClientDate,
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO game_winners (id, name, email, message, client_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, w.ID, w.Name, w.Email, w.Message, w.ClientDate).Scan(&w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWinners 获取全部获胜者
func (p *Postgres) ListWinners(ctx context.Context) ([]Winner, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::TEXT, name, email, message, client_date, created_at
		FROM game_winners
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Winner
	for rows.Next() {
		var w Winner
		if err := rows.Scan(&w.ID, &w.Name, &w.Email, &w.Message, &w.ClientDate, &w.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// DeleteWinner 删除获胜者记录
func (p *Postgres) DeleteWinner(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM game_winners WHERE id = $1`, id)
}

// GetState 读取访客状态
func (p *Postgres) GetState(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, `
		SELECT value FROM client_state WHERE session_id = $1 AND key = $2
	`, sessionID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetState 写入访客状态
func (p *Postgres) SetState(ctx context.Context, sessionID, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO client_state (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, sessionID, key, value)
	return err
}

// PurgeState 删除长期不活跃的访客状态
func (p *Postgres) PurgeState(ctx context.Context, before time.Time) (int64, error) {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM client_state
		WHERE session_id IN (
			SELECT session_id FROM client_state
			GROUP BY session_id
			HAVING MAX(updated_at) < $1
		)
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Close 关闭数据库连接
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// execOne 执行单行变更，未命中时返回 ErrNotFound
func (p *Postgres) execOne(ctx context.Context, sql string, id string) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	result, err := p.pool.Exec(ctx, sql, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
