package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite 单机 SQLite 存储
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite 打开 SQLite 数据库文件
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	// SQLite 只允许单写者
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	slog.Info("数据库连接成功", "driver", DriverSQLite, "path", path)
	return &SQLite{db: db, now: time.Now}, nil
}

// Migrate 执行数据库迁移
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("创建迁移历史表失败: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return err
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	all, err := readMigrations(migrationsFS, "migrations/sqlite")
	if err != nil {
		return err
	}

	for _, m := range pendingMigrations(all, applied) {
		slog.Info("执行迁移", "version", m.Version, "name", m.Name)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("开始事务失败: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("执行迁移 %d_%s 失败: %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, s.now().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("记录迁移历史失败: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("提交事务失败: %w", err)
		}

		slog.Info("迁移完成", "version", m.Version, "name", m.Name)
	}
	return nil
}

// CreateFeedback 创建留言
func (s *SQLite) CreateFeedback(ctx context.Context, in NewFeedback) (*Feedback, error) {
	f := Feedback{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		SessionID:  in.SessionID,
		ClientDate: in.ClientDate,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, name, email, message, session_id, client_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Email, f.Message, f.SessionID, f.ClientDate, f.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFeedback 获取全部留言
func (s *SQLite) ListFeedback(ctx context.Context) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, message, likes, approved, is_starred,
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
		var createdAt int64
		if err := rows.Scan(
			&f.ID, &f.Name, &f.Email, &f.Message, &f.Likes, &f.Approved, &f.IsStarred,
			&f.SessionID, &f.ClientDate, &createdAt,
		); err != nil {
			return nil, err
		}
		f.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, f)
	}
	return list, rows.Err()
}

// IncrementLikes 原子递增点赞数
func (s *SQLite) IncrementLikes(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE feedback SET likes = likes + 1 WHERE id = ?`, id)
}

// ApproveFeedback 审核通过
func (s *SQLite) ApproveFeedback(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE feedback SET approved = 1 WHERE id = ?`, id)
}

// ToggleStar 切换置顶
func (s *SQLite) ToggleStar(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE feedback SET is_starred = 1 - is_starred WHERE id = ?`, id)
}

// DeleteFeedback 删除留言
func (s *SQLite) DeleteFeedback(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM feedback WHERE id = ?`, id)
}

// CreateWinner 创建获胜者记录
func (s *SQLite) CreateWinner(ctx context.Context, in NewWinner) (*Winner, error) {
	w := Winner{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		ClientDate: in.ClientDate,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_winners (id, name, email, message, client_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.ID, w.Name, w.Email, w.Message, w.ClientDate, w.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWinners 获取全部获胜者
func (s *SQLite) ListWinners(ctx context.Context) ([]Winner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, message, client_date, created_at FROM game_winners
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Winner
	for rows.Next() {
		var w Winner
		var createdAt int64
		if err := rows.Scan(&w.ID, &w.Name, &w.Email, &w.Message, &w.ClientDate, &createdAt); err != nil {
			return nil, err
		}
		w.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, w)
	}
	return list, rows.Err()
}

// DeleteWinner 删除获胜者记录
func (s *SQLite) DeleteWinner(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM game_winners WHERE id = ?`, id)
}

// GetState 读取访客状态
func (s *SQLite) GetState(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM client_state WHERE session_id = ? AND key = ?
	`, sessionID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetState 写入访客状态
func (s *SQLite) SetState(ctx context.Context, sessionID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, sessionID, key, value, s.now().UnixMilli())
	return err
}

// PurgeState 删除长期不活跃的访客状态
func (s *SQLite) PurgeState(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM client_state
		WHERE session_id IN (
			SELECT session_id FROM client_state
			GROUP BY session_id
			HAVING MAX(updated_at) < ?
		)
	`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close 关闭数据库
func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLite) execOne(ctx context.Context, query, id string) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
