// Package game 管理每个访客的拼图实例与获胜者登记流程
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/notify"
	"portfolio-srv/internal/puzzle"
	"portfolio-srv/pkg/utils"
)

// Phase 拼图实例阶段
type Phase int

const (
	Playing Phase = iota
	Won
	FormPending
	Submitted
)

func (p Phase) String() string {
	switch p {
	case Won:
		return "won"
	case FormPending:
		return "formPending"
	case Submitted:
		return "submitted"
	default:
		return "playing"
	}
}

// MarshalText 以字符串形式输出
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText 解析 MarshalText 的输出
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{Playing, Won, FormPending, Submitted} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("未知的阶段: %q", text)
}

var (
	// ErrSubmitInFlight 已有提交正在进行
	ErrSubmitInFlight = errors.New("获胜者信息正在提交")
	// ErrNotWon 尚未完成拼图
	ErrNotWon = errors.New("拼图尚未完成")
)

// WinnerForm 获胜者表单
type WinnerForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// WinnerStore 获胜者写入
type WinnerStore interface {
	CreateWinner(ctx context.Context, in database.NewWinner) (*database.Winner, error)
}

// BoardSource 新棋盘来源，*puzzle.Shuffler 即为实现
type BoardSource interface {
	Next() puzzle.Board
}

// Deps 实例依赖
type Deps struct {
	Shuffler BoardSource
	Store    WinnerStore
	Notifier *notify.Dispatcher
	Now      func() time.Time
	OnMove   func()
	OnWin    func()
}

// View 实例对外快照
type View struct {
	Board  puzzle.Board `json:"board"`
	Phase  Phase        `json:"phase"`
	Locked bool         `json:"locked"`
	Form   WinnerForm   `json:"form"`
	Moves  int          `json:"moves"`
}

// Instance 单个访客的拼图实例
type Instance struct {
	mu       sync.Mutex
	deps     Deps
	board    puzzle.Board
	phase    Phase
	locked   bool
	form     WinnerForm
	moves    int
	lastUsed time.Time
}

// NewInstance 创建实例；admin 为 true 时棋盘保持还原状态并锁定
func NewInstance(deps Deps, admin bool) *Instance {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	inst := &Instance{deps: deps, lastUsed: deps.Now()}
	if admin {
		inst.board = puzzle.Solved()
		inst.locked = true
	} else {
		inst.board = deps.Shuffler.Next()
	}
	return inst
}

// View 返回当前状态
func (i *Instance) View() View {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.viewLocked()
}

func (i *Instance) viewLocked() View {
	return View{Board: i.board, Phase: i.phase, Locked: i.locked, Form: i.form, Moves: i.moves}
}

// Move 移动目标格；非法移动、已获胜或管理员锁定时原样返回
func (i *Instance) Move(target int) View {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touchLocked()

	if i.locked || i.phase != Playing {
		return i.viewLocked()
	}
	next := puzzle.ApplyMove(i.board, target)
	if next == i.board {
		return i.viewLocked()
	}
	i.board = next
	i.moves++
	if i.deps.OnMove != nil {
		i.deps.OnMove()
	}
	if puzzle.IsSolved(i.board) {
		i.phase = Won
		if i.deps.OnWin != nil {
			i.deps.OnWin()
		}
	}
	return i.viewLocked()
}

// Reset 重新打乱，任意阶段回到 Playing 并清空表单
// 管理员锁定期间保持还原棋盘
func (i *Instance) Reset() View {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touchLocked()
	if i.locked {
		return i.viewLocked()
	}
	i.resetLocked()
	return i.viewLocked()
}

func (i *Instance) resetLocked() {
	i.board = i.deps.Shuffler.Next()
	i.phase = Playing
	i.form = WinnerForm{}
	i.moves = 0
}

// SetAdmin 进入管理员模式时棋盘还原并锁定（不算获胜），退出时重新打乱
func (i *Instance) SetAdmin(admin bool) View {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touchLocked()
	if admin {
		i.board = puzzle.Solved()
		i.phase = Playing
		i.form = WinnerForm{}
		i.moves = 0
		i.locked = true
	} else {
		i.locked = false
		i.resetLocked()
	}
	return i.viewLocked()
}

// Submit 提交获胜者表单
// 校验失败返回 *utils.ValidationError 并保留表单；写入失败回到 Won 阶段
func (i *Instance) Submit(ctx context.Context, form WinnerForm, lang string) error {
	i.mu.Lock()
	i.touchLocked()
	switch i.phase {
	case FormPending:
		i.mu.Unlock()
		return ErrSubmitInFlight
	case Won:
	default:
		i.mu.Unlock()
		return ErrNotWon
	}

	i.form = form
	if utils.Blank(form.Name) {
		i.mu.Unlock()
		return &utils.ValidationError{Field: "name", Message: i18n.T(lang, i18n.NameRequired)}
	}
	if !utils.ValidEmail(form.Email) {
		i.mu.Unlock()
		return &utils.ValidationError{Field: "email", Message: i18n.T(lang, i18n.InvalidEmail)}
	}
	i.phase = FormPending
	now := i.deps.Now()
	i.mu.Unlock()

	if i.deps.Notifier != nil {
		msg := form.Message
		if msg == "" {
			msg = "No message"
		}
		i.deps.Notifier.Dispatch(ctx, "winner", notify.Notification{
			FromName:  form.Name,
			FromEmail: form.Email,
			Message:   "[GAME WINNER] " + msg,
		})
	}

	_, err := i.deps.Store.CreateWinner(ctx, database.NewWinner{
		Name:       form.Name,
		Email:      form.Email,
		Message:    form.Message,
		ClientDate: utils.ClientDate(now),
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	// 提交期间被重置则丢弃结果
	if i.phase != FormPending {
		return err
	}
	if err != nil {
		i.phase = Won
		var writeErr *database.StoreWriteError
		if !errors.As(err, &writeErr) {
			err = &database.StoreWriteError{Op: "create winner", Err: err}
		}
		return fmt.Errorf("保存获胜者失败: %w", err)
	}
	i.phase = Submitted
	i.form = WinnerForm{}
	return nil
}

// LastUsed 最近一次操作时间
func (i *Instance) LastUsed() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastUsed
}

func (i *Instance) touchLocked() {
	i.lastUsed = i.deps.Now()
}
