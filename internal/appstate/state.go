// Package appstate 提供访客的本地持久化状态（主题、语言、会话、管理员标记、点赞集合）
package appstate

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// 持久化键名
const (
	KeySessionID = "portfolio_session_id"
	KeyIsAdmin   = "portfolio_is_admin"
	KeyLiked     = "portfolio_liked_comments"
	KeyTheme     = "theme"
	KeyLang      = "lang"
)

// 主题与语言取值
const (
	ThemeDark  = "dark-mode"
	ThemeLight = "light-mode"
	LangEN     = "en"
	LangAR     = "ar"
)

// KV 简单键值持久化
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// MemoryKV 内存键值存储
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV 创建内存键值存储
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get 实现 KV
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set 实现 KV
func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// State 单个访客的应用状态，修改即保存
type State struct {
	mu        sync.RWMutex
	kv        KV
	sessionID string
	admin     bool
	liked     map[string]struct{}
	theme     string
	lang      string
}

// Load 从 KV 加载状态；会话ID缺失时使用 newSessionID 生成并保存
func Load(kv KV, newSessionID func() string) (*State, error) {
	s := &State{
		kv:    kv,
		liked: make(map[string]struct{}),
		theme: ThemeDark,
		lang:  LangEN,
	}

	id, ok, err := kv.Get(KeySessionID)
	if err != nil {
		return nil, fmt.Errorf("读取会话ID失败: %w", err)
	}
	if !ok || id == "" {
		id = newSessionID()
		if err := kv.Set(KeySessionID, id); err != nil {
			return nil, fmt.Errorf("保存会话ID失败: %w", err)
		}
	}
	s.sessionID = id

	if v, ok, err := kv.Get(KeyIsAdmin); err != nil {
		return nil, fmt.Errorf("读取管理员标记失败: %w", err)
	} else if ok {
		s.admin = v == "true"
	}

	if v, ok, err := kv.Get(KeyLiked); err != nil {
		return nil, fmt.Errorf("读取点赞记录失败: %w", err)
	} else if ok && v != "" {
		var ids []string
		// 损坏的数据按空集合处理
		if json.Unmarshal([]byte(v), &ids) == nil {
			for _, id := range ids {
				s.liked[id] = struct{}{}
			}
		}
	}

	if v, ok, err := kv.Get(KeyTheme); err != nil {
		return nil, fmt.Errorf("读取主题失败: %w", err)
	} else if ok && ValidTheme(v) {
		s.theme = v
	}

	if v, ok, err := kv.Get(KeyLang); err != nil {
		return nil, fmt.Errorf("读取语言失败: %w", err)
	} else if ok && ValidLang(v) {
		s.lang = v
	}

	return s, nil
}

// ValidTheme 主题是否合法
func ValidTheme(v string) bool { return v == ThemeDark || v == ThemeLight }

// ValidLang 语言是否合法
func ValidLang(v string) bool { return v == LangEN || v == LangAR }

// SessionID 会话标识
func (s *State) SessionID() string {
	return s.sessionID
}

// IsAdmin 管理员标记
func (s *State) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// SetAdmin 修改管理员标记并保存
func (s *State) SetAdmin(admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = admin
	return s.kv.Set(KeyIsAdmin, fmt.Sprint(admin))
}

// Theme 主题
func (s *State) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme 修改主题并保存
func (s *State) SetTheme(theme string) error {
	if !ValidTheme(theme) {
		return fmt.Errorf("无效的主题: %q", theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return s.kv.Set(KeyTheme, theme)
}

// Lang 语言
func (s *State) Lang() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// SetLang 修改语言并保存
func (s *State) SetLang(lang string) error {
	if !ValidLang(lang) {
		return fmt.Errorf("无效的语言: %q", lang)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lang = lang
	return s.kv.Set(KeyLang, lang)
}

// HasLiked 是否已点赞
func (s *State) HasLiked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.liked[id]
	return ok
}

// TryLike 在同一把锁内检查并记录点赞，已点过返回 false；保存失败时不留下记录
func (s *State) TryLike(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liked[id]; ok {
		return false, nil
	}
	s.liked[id] = struct{}{}
	if err := s.saveLikedLocked(); err != nil {
		delete(s.liked, id)
		return false, err
	}
	return true, nil
}

// RemoveLiked 撤销一条点赞记录
func (s *State) RemoveLiked(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liked[id]; !ok {
		return nil
	}
	delete(s.liked, id)
	return s.saveLikedLocked()
}

func (s *State) saveLikedLocked() error {
	data, err := json.Marshal(s.likedLocked())
	if err != nil {
		return err
	}
	return s.kv.Set(KeyLiked, string(data))
}

// Liked 返回已点赞ID（有序）
func (s *State) Liked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.likedLocked()
}

func (s *State) likedLocked() []string {
	ids := make([]string, 0, len(s.liked))
	for id := range s.liked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
