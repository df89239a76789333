// Package gate 提供访客/管理员模式切换的暗门状态机
package gate

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// 暗门激活参数
const (
	ActivationThreshold = 5           // 窗口内需要的点击次数
	ActivationWindow    = time.Second // 从第一次点击起算的窗口
)

// ErrWrongSecret 口令错误
var ErrWrongSecret = errors.New("管理员口令错误")

// ErrNotArmed 口令输入框未被激活
var ErrNotArmed = errors.New("口令输入未激活")

// Mode 访问模式
type Mode int

const (
	Visitor Mode = iota
	Admin
)

func (m Mode) String() string {
	if m == Admin {
		return "admin"
	}
	return "visitor"
}

// Outcome 一次激活点击的结果
type Outcome int

const (
	// Counted 点击已计数，无需界面响应
	Counted Outcome = iota
	// PromptSecret 达到阈值，需要弹出口令输入
	PromptSecret
	// LoggedOut 管理员再次触发暗门，已退出
	LoggedOut
)

// Activator 点击计数状态机 (count, deadline)
type Activator struct {
	count    int
	deadline time.Time
}

// Click 记录一次点击，返回是否达到阈值
// 达到阈值或窗口过期都会清零计数
func (a *Activator) Click(now time.Time) bool {
	if a.count > 0 && !now.Before(a.deadline) {
		a.count = 0
	}
	if a.count == 0 {
		a.deadline = now.Add(ActivationWindow)
	}
	a.count++
	if a.count >= ActivationThreshold {
		a.Reset()
		return true
	}
	return false
}

// Count 返回 now 时刻仍有效的点击数
func (a *Activator) Count(now time.Time) int {
	if a.count > 0 && !now.Before(a.deadline) {
		return 0
	}
	return a.count
}

// Reset 清零
func (a *Activator) Reset() {
	a.count = 0
	a.deadline = time.Time{}
}

// Verifier 校验管理员口令
type Verifier interface {
	Verify(secret string) bool
}

// PlainVerifier 明文口令（常量时间比较）
type PlainVerifier string

// Verify 实现 Verifier
func (p PlainVerifier) Verify(secret string) bool {
	if p == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p), []byte(secret)) == 1
}

// BcryptVerifier bcrypt 哈希口令
type BcryptVerifier []byte

// Verify 实现 Verifier
func (h BcryptVerifier) Verify(secret string) bool {
	return bcrypt.CompareHashAndPassword(h, []byte(secret)) == nil
}

// Gate 单个访客的模式状态机
type Gate struct {
	mu       sync.Mutex
	mode     Mode
	armed    bool
	act      Activator
	verifier Verifier
	onChange func(Mode)
}

// New 创建暗门，onChange 在模式变化后回调（用于持久化与重置棋盘）
func New(v Verifier, initial Mode, onChange func(Mode)) *Gate {
	return &Gate{verifier: v, mode: initial, onChange: onChange}
}

// Mode 返回当前模式
func (g *Gate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// IsAdmin 是否管理员
func (g *Gate) IsAdmin() bool {
	return g.Mode() == Admin
}

// Armed 口令输入是否已激活
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Activate 处理一次暗门点击
func (g *Gate) Activate(now time.Time) Outcome {
	g.mu.Lock()
	if !g.act.Click(now) {
		g.mu.Unlock()
		return Counted
	}
	if g.mode == Admin {
		g.mu.Unlock()
		g.Logout()
		return LoggedOut
	}
	g.armed = true
	g.mu.Unlock()
	return PromptSecret
}

// SubmitSecret 提交口令；无论成功与否都会关闭输入框并清零计数
func (g *Gate) SubmitSecret(secret string) error {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return ErrNotArmed
	}
	g.armed = false
	g.act.Reset()
	if g.verifier == nil || !g.verifier.Verify(secret) {
		g.mu.Unlock()
		return ErrWrongSecret
	}
	changed := g.mode != Admin
	g.mode = Admin
	g.mu.Unlock()

	if changed && g.onChange != nil {
		g.onChange(Admin)
	}
	return nil
}

// Logout 退出管理员模式，总是成功
func (g *Gate) Logout() {
	g.mu.Lock()
	changed := g.mode != Visitor
	g.mode = Visitor
	g.armed = false
	g.act.Reset()
	g.mu.Unlock()

	if changed && g.onChange != nil {
		g.onChange(Visitor)
	}
}
