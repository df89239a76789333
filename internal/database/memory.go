package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory 内存存储，用于测试和无数据库部署
type Memory struct {
	mu       sync.RWMutex
	feedback map[string]*Feedback
	winners  map[string]*Winner
	state    map[string]map[string]stateEntry
	now      func() time.Time
}

type stateEntry struct {
	value     string
	updatedAt time.Time
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{
		feedback: make(map[string]*Feedback),
		winners:  make(map[string]*Winner),
		state:    make(map[string]map[string]stateEntry),
		now:      time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// CreateFeedback 创建留言
func (m *Memory) CreateFeedback(_ context.Context, in NewFeedback) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := &Feedback{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		SessionID:  in.SessionID,
		ClientDate: in.ClientDate,
		CreatedAt:  m.now(),
	}
	m.feedback[f.ID] = f
	out := *f
	return &out, nil
}

// ListFeedback 获取全部留言
func (m *Memory) ListFeedback(_ context.Context) ([]Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Feedback, 0, len(m.feedback))
	for _, f := range m.feedback {
		list = append(list, *f)
	}
	return list, nil
}

// IncrementLikes 点赞数加一
func (m *Memory) IncrementLikes(_ context.Context, id string) error {
	return m.updateFeedback(id, func(f *Feedback) { f.Likes++ })
}

// ApproveFeedback 审核通过
func (m *Memory) ApproveFeedback(_ context.Context, id string) error {
	return m.updateFeedback(id, func(f *Feedback) { f.Approved = true })
}

// ToggleStar 切换置顶
func (m *Memory) ToggleStar(_ context.Context, id string) error {
	return m.updateFeedback(id, func(f *Feedback) { f.IsStarred = !f.IsStarred })
}

// DeleteFeedback 删除留言
func (m *Memory) DeleteFeedback(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feedback[id]; !ok {
		return ErrNotFound
	}
	delete(m.feedback, id)
	return nil
}

func (m *Memory) updateFeedback(id string, fn func(*Feedback)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[id]
	if !ok {
		return ErrNotFound
	}
	fn(f)
	return nil
}

// CreateWinner 创建获胜者记录
func (m *Memory) CreateWinner(_ context.Context, in NewWinner) (*Winner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &Winner{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Message:    in.Message,
		ClientDate: in.ClientDate,
		CreatedAt:  m.now(),
	}
	m.winners[w.ID] = w
	out := *w
	return &out, nil
}

// ListWinners 获取全部获胜者
func (m *Memory) ListWinners(_ context.Context) ([]Winner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Winner, 0, len(m.winners))
	for _, w := range m.winners {
		list = append(list, *w)
	}
	return list, nil
}

// DeleteWinner 删除获胜者记录
func (m *Memory) DeleteWinner(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.winners[id]; !ok {
		return ErrNotFound
	}
	delete(m.winners, id)
	return nil
}

// GetState 读取访客状态
func (m *Memory) GetState(_ context.Context, sessionID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.state[sessionID][key]
	return e.value, ok, nil
}

// SetState 写入访客状态
func (m *Memory) SetState(_ context.Context, sessionID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state[sessionID] == nil {
		m.state[sessionID] = make(map[string]stateEntry)
	}
	m.state[sessionID][key] = stateEntry{value: value, updatedAt: m.now()}
	return nil
}

// PurgeState 删除 before 之前未更新过的访客状态
func (m *Memory) PurgeState(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for sid, entries := range m.state {
		latest := time.Time{}
		for _, e := range entries {
			if e.updatedAt.After(latest) {
				latest = e.updatedAt
			}
		}
		if latest.Before(before) {
			count += int64(len(entries))
			delete(m.state, sid)
		}
	}
	return count, nil
}

// Close 实现 Store
func (m *Memory) Close() {}
