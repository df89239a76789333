package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"portfolio-srv/internal/appstate"
	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/gate"
	"portfolio-srv/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	// SessionCookieName 访客标识 Cookie 名称
	SessionCookieName = appstate.KeySessionID
	// SessionDuration Cookie 有效期
	SessionDuration = 365 * 24 * time.Hour
	// VisitorKey 访客上下文键
	VisitorKey ContextKey = "visitor"
)

// Visitor 单个访客：持久化状态、暗门与拼图实例
type Visitor struct {
	State *appstate.State
	Gate  *gate.Gate
	games *game.Registry
}

// SessionID 会话标识
func (v *Visitor) SessionID() string {
	return v.State.SessionID()
}

// IsAdmin 是否管理员
func (v *Visitor) IsAdmin() bool {
	return v.Gate.IsAdmin()
}

// Game 当前访客的拼图实例
func (v *Visitor) Game() *game.Instance {
	return v.games.Get(v.SessionID(), v.IsAdmin())
}

// Viewer 留言板视角
func (v *Visitor) Viewer() feedback.Viewer {
	return feedback.Viewer{SessionID: v.SessionID(), Admin: v.IsAdmin(), Lang: v.State.Lang()}
}

type sessionEntry struct {
	visitor  *Visitor
	lastSeen time.Time
}

// SessionStore 访客会话缓存，状态本身保存在存储层
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	loads    singleflight.Group
	store    database.Store
	verifier gate.Verifier
	games    *game.Registry
	now      func() time.Time
}

// NewSessionStore 创建会话缓存
func NewSessionStore(store database.Store, verifier gate.Verifier, games *game.Registry) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		store:    store,
		verifier: verifier,
		games:    games,
		now:      time.Now,
	}
}

// GetVisitor 按会话ID获取访客，未缓存时从存储加载
// 加载在锁外进行，同一会话的并发加载合并为一次
func (s *SessionStore) GetVisitor(sessionID string) (*Visitor, error) {
	if v := s.cached(sessionID); v != nil {
		return v, nil
	}

	res, err, _ := s.loads.Do(sessionID, func() (any, error) {
		if v := s.cached(sessionID); v != nil {
			return v, nil
		}
		v, err := s.load(sessionID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.sessions[sessionID]; ok {
			e.lastSeen = s.now()
			return e.visitor, nil
		}
		s.sessions[sessionID] = &sessionEntry{visitor: v, lastSeen: s.now()}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Visitor), nil
}

func (s *SessionStore) cached(sessionID string) *Visitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		e.lastSeen = s.now()
		return e.visitor
	}
	return nil
}

func (s *SessionStore) load(sessionID string) (*Visitor, error) {
	state, err := appstate.Load(database.NewSessionKV(s.store, sessionID), func() string { return sessionID })
	if err != nil {
		return nil, fmt.Errorf("加载访客状态失败: %w", err)
	}

	v := &Visitor{State: state, games: s.games}
	initial := gate.Visitor
	if state.IsAdmin() {
		initial = gate.Admin
	}
	v.Gate = gate.New(s.verifier, initial, func(m gate.Mode) {
		admin := m == gate.Admin
		if err := state.SetAdmin(admin); err != nil {
			slog.Error("保存管理员标记失败", "session", sessionID, "error", err)
		}
		v.Game().SetAdmin(admin)
		slog.Info("访客模式切换", "session", sessionID, "mode", m)
	})
	return v, nil
}

// Len 缓存的会话数
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupIdle 清理空闲会话缓存（状态仍保留在存储中）
func (s *SessionStore) CleanupIdle(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	n := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// SetSessionCookie 设置访客 Cookie
func SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(SessionDuration.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// VisitorSession 识别访客；没有合法 Cookie 时分配新的会话标识
func VisitorSession(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			visitor, err := sessions.GetVisitor(sessionID)
			if err != nil {
				utils.ErrorResponse(w, http.StatusInternalServerError, "加载会话失败", err)
				return
			}
			SetSessionCookie(w, sessionID)

			ctx := context.WithValue(r.Context(), VisitorKey, visitor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly 管理员权限中间件，需在 VisitorSession 之后使用
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := GetVisitor(r)
		if v == nil || !v.IsAdmin() {
			utils.ErrorResponse(w, http.StatusForbidden, "需要管理员权限", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetVisitor 从上下文获取访客
func GetVisitor(r *http.Request) *Visitor {
	if v, ok := r.Context().Value(VisitorKey).(*Visitor); ok {
		return v
	}
	return nil
}
