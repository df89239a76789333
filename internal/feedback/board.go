// Package feedback 实现留言板：提交、可见性过滤、排序、点赞与管理员审核
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/notify"
	"portfolio-srv/pkg/utils"
)

// Viewer 当前访客
type Viewer struct {
	SessionID string
	Admin     bool
	Lang      string
}

// LikedSet 访客已点赞集合
type LikedSet interface {
	HasLiked(id string) bool
	// TryLike 原子地检查并记录，已点过返回 false
	TryLike(id string) (bool, error)
	RemoveLiked(id string) error
}

// Form 留言表单
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Subscriber 实时订阅
type Subscriber interface {
	Subscribe(ctx context.Context, c database.Collection, onSnapshot func(database.Snapshot), onError func(error)) func()
}

// Board 留言板服务
type Board struct {
	store    database.Store
	hub      Subscriber
	notifier *notify.Dispatcher
	now      func() time.Time
	onLike   func()
}

// NewBoard 创建留言板，store 应为 *database.Live 以便写入后推送
func NewBoard(store database.Store, hub Subscriber, n *notify.Dispatcher) *Board {
	return &Board{store: store, hub: hub, notifier: n, now: time.Now}
}

// OnLike 设置点赞回调（指标统计）
func (b *Board) OnLike(fn func()) { b.onLike = fn }

// Submit 提交留言，新留言待审核
func (b *Board) Submit(ctx context.Context, v Viewer, f Form) (*database.Feedback, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Message = strings.TrimSpace(f.Message)
	if f.Name == "" || f.Email == "" || f.Message == "" {
		field := "message"
		switch {
		case f.Name == "":
			field = "name"
		case f.Email == "":
			field = "email"
		}
		return nil, &utils.ValidationError{Field: field, Message: i18n.T(v.Lang, i18n.FeedbackRequired)}
	}
	if !utils.ValidEmail(f.Email) {
		return nil, &utils.ValidationError{Field: "email", Message: i18n.T(v.Lang, i18n.InvalidEmail)}
	}

	if b.notifier != nil {
		b.notifier.Dispatch(ctx, "feedback", notify.Notification{
			FromName:  f.Name,
			FromEmail: f.Email,
			Message:   "[FEEDBACK] " + f.Message,
		})
	}

	rec, err := b.store.CreateFeedback(ctx, database.NewFeedback{
		Name:       f.Name,
		Email:      f.Email,
		Message:    f.Message,
		SessionID:  v.SessionID,
		ClientDate: utils.ClientDate(b.now()),
	})
	if err != nil {
		return nil, asWriteError("create feedback", err)
	}
	return rec, nil
}

// Visible 管理员看到全部；其他人只看到已审核的和自己提交的
func Visible(records []database.Feedback, v Viewer) []database.Feedback {
	if v.Admin {
		return slices.Clone(records)
	}
	out := make([]database.Feedback, 0, len(records))
	for _, r := range records {
		if r.Approved || (v.SessionID != "" && r.SessionID == v.SessionID) {
			out = append(out, r)
		}
	}
	return out
}

// Sort 置顶优先，其次按创建时间倒序；缺失时间视为 0，稳定排序
func Sort(records []database.Feedback) []database.Feedback {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b database.Feedback) int {
		if a.IsStarred != b.IsStarred {
			if a.IsStarred {
				return -1
			}
			return 1
		}
		return timestampOf(b).Compare(timestampOf(a))
	})
	return out
}

func timestampOf(f database.Feedback) time.Time {
	if f.CreatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return f.CreatedAt
}

// View 可见并排序后的列表
func View(records []database.Feedback, v Viewer) []database.Feedback {
	return Sort(Visible(records, v))
}

// List 读取当前视图
func (b *Board) List(ctx context.Context, v Viewer) ([]database.Feedback, error) {
	records, err := b.store.ListFeedback(ctx)
	if err != nil {
		return nil, err
	}
	return View(records, v), nil
}

// Upvote 点赞；非管理员重复点赞静默忽略，管理员不受限制且不记录
// 非管理员先占用点赞记录再计数，同一访客的并发点赞只会计一次
func (b *Board) Upvote(ctx context.Context, v Viewer, liked LikedSet, id string) error {
	reserve := !v.Admin && liked != nil
	if reserve {
		added, err := liked.TryLike(id)
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
	}
	if err := b.store.IncrementLikes(ctx, id); err != nil {
		if reserve {
			if rerr := liked.RemoveLiked(id); rerr != nil {
				slog.Warn("撤销点赞记录失败", "id", id, "error", rerr)
			}
		}
		return asWriteError("increment likes", err)
	}
	if b.onLike != nil {
		b.onLike()
	}
	return nil
}

// Approve 审核通过（仅管理员，幂等）
func (b *Board) Approve(ctx context.Context, v Viewer, id string) error {
	if !v.Admin {
		return nil
	}
	if err := b.store.ApproveFeedback(ctx, id); err != nil {
		return asWriteError("approve feedback", err)
	}
	return nil
}

// ToggleStar 切换置顶（仅管理员）
func (b *Board) ToggleStar(ctx context.Context, v Viewer, id string) error {
	if !v.Admin {
		return nil
	}
	if err := b.store.ToggleStar(ctx, id); err != nil {
		return asWriteError("toggle star", err)
	}
	return nil
}

// Delete 删除留言（仅管理员，需确认）
func (b *Board) Delete(ctx context.Context, v Viewer, id string, confirmed bool) error {
	if !v.Admin {
		return nil
	}
	if !confirmed {
		return database.ErrConfirmationRequired
	}
	if err := b.store.DeleteFeedback(ctx, id); err != nil {
		return asWriteError("delete feedback", err)
	}
	return nil
}

// Subscribe 订阅留言视图，每个快照都重新过滤排序
func (b *Board) Subscribe(ctx context.Context, v Viewer, onView func([]database.Feedback), onError func(error)) func() {
	return b.hub.Subscribe(ctx, database.CollectionFeedback, func(s database.Snapshot) {
		onView(View(s.Feedback, v))
	}, onError)
}

func asWriteError(op string, err error) error {
	var writeErr *database.StoreWriteError
	if errors.As(err, &writeErr) {
		return err
	}
	return &database.StoreWriteError{Op: op, Err: err}
}
