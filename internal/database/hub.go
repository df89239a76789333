package database

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// refreshTimeout 单次快照刷新的超时
const refreshTimeout = 10 * time.Second

type subscriber struct {
	onSnapshot func(Snapshot)
	onError    func(error)
}

// Hub 实时订阅中心
// 每次变更都重新读取整个集合并推送完整快照，不做增量合并。
// 回调在刷新锁内串行调用，不能阻塞，也不能再写入存储。
type Hub struct {
	store Store

	refreshMu sync.Mutex // 保证快照按顺序送达

	mu     sync.Mutex
	nextID uint64
	subs   map[Collection]map[uint64]subscriber
}

// NewHub 创建订阅中心
func NewHub(store Store) *Hub {
	return &Hub{
		store: store,
		subs:  make(map[Collection]map[uint64]subscriber),
	}
}

// Subscribe 订阅集合，立即推送一次当前快照，返回取消订阅函数
// 首次读取失败时通过 onError 报告 StoreSubscriptionError，且不会登记订阅
func (h *Hub) Subscribe(ctx context.Context, c Collection, onSnapshot func(Snapshot), onError func(error)) (unsubscribe func()) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snap, err := snapshotOf(loadCtx, h.store, c)
	if err != nil {
		if onError != nil {
			onError(&StoreSubscriptionError{Collection: c, Err: err})
		}
		return func() {}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[c] == nil {
		h.subs[c] = make(map[uint64]subscriber)
	}
	h.subs[c][id] = subscriber{onSnapshot: onSnapshot, onError: onError}
	h.mu.Unlock()

	onSnapshot(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[c], id)
			if len(h.subs[c]) == 0 {
				delete(h.subs, c)
			}
		})
	}
}

// Subscribers 返回集合当前订阅数
func (h *Hub) Subscribers(c Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[c])
}

// Refresh 重新读取集合并推送给所有订阅者
func (h *Hub) Refresh(ctx context.Context, c Collection) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	targets := h.targets(c)
	if len(targets) == 0 {
		return
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	snap, err := snapshotOf(loadCtx, h.store, c)
	if err != nil {
		slog.Error("刷新订阅快照失败", "collection", c, "error", err)
		subErr := &StoreSubscriptionError{Collection: c, Err: err}
		for _, s := range targets {
			if s.onError != nil {
				s.onError(subErr)
			}
		}
		return
	}

	for _, s := range targets {
		s.onSnapshot(snap.clone())
	}
}

func (h *Hub) targets(c Collection) []subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]subscriber, 0, len(h.subs[c]))
	for _, s := range h.subs[c] {
		list = append(list, s)
	}
	return list
}

// Live 包装存储：写入失败包装为 StoreWriteError，写入成功后刷新订阅
type Live struct {
	Store
	hub *Hub
}

// NewLive 创建带实时推送的存储
func NewLive(store Store, hub *Hub) *Live {
	return &Live{Store: store, hub: hub}
}

// CreateFeedback 创建留言
func (l *Live) CreateFeedback(ctx context.Context, in NewFeedback) (*Feedback, error) {
	f, err := l.Store.CreateFeedback(ctx, in)
	if err != nil {
		return nil, &StoreWriteError{Op: "create feedback", Err: err}
	}
	l.hub.Refresh(ctx, CollectionFeedback)
	return f, nil
}

// IncrementLikes 点赞
func (l *Live) IncrementLikes(ctx context.Context, id string) error {
	return l.write(ctx, CollectionFeedback, "increment likes", func() error {
		return l.Store.IncrementLikes(ctx, id)
	})
}

// ApproveFeedback 审核
func (l *Live) ApproveFeedback(ctx context.Context, id string) error {
	return l.write(ctx, CollectionFeedback, "approve feedback", func() error {
		return l.Store.ApproveFeedback(ctx, id)
	})
}

// ToggleStar 置顶
func (l *Live) ToggleStar(ctx context.Context, id string) error {
	return l.write(ctx, CollectionFeedback, "toggle star", func() error {
		return l.Store.ToggleStar(ctx, id)
	})
}

// DeleteFeedback 删除留言
func (l *Live) DeleteFeedback(ctx context.Context, id string) error {
	return l.write(ctx, CollectionFeedback, "delete feedback", func() error {
		return l.Store.DeleteFeedback(ctx, id)
	})
}

// CreateWinner 创建获胜者记录
func (l *Live) CreateWinner(ctx context.Context, in NewWinner) (*Winner, error) {
	w, err := l.Store.CreateWinner(ctx, in)
	if err != nil {
		return nil, &StoreWriteError{Op: "create winner", Err: err}
	}
	l.hub.Refresh(ctx, CollectionWinners)
	return w, nil
}

// DeleteWinner 删除获胜者记录
func (l *Live) DeleteWinner(ctx context.Context, id string) error {
	return l.write(ctx, CollectionWinners, "delete winner", func() error {
		return l.Store.DeleteWinner(ctx, id)
	})
}

func (l *Live) write(ctx context.Context, c Collection, op string, fn func() error) error {
	if err := fn(); err != nil {
		return &StoreWriteError{Op: op, Err: err}
	}
	l.hub.Refresh(ctx, c)
	return nil
}
