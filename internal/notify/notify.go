// Package notify 提供邮件通知转发（EmailJS / NATS），发送失败只记录日志
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// dispatchTimeout 单次后台发送超时
const dispatchTimeout = 15 * time.Second

// Notification 模板化通知参数
type Notification struct {
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	Message   string `json:"message"`
	ToName    string `json:"to_name"`
}

// Notifier 通知发送器
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationDispatchError 通知发送失败
type NotificationDispatchError struct {
	Kind string
	Err  error
}

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("发送%s通知失败: %v", e.Kind, e.Err)
}

func (e *NotificationDispatchError) Unwrap() error { return e.Err }

// Nop 不发送任何通知（未配置凭据时使用）
type Nop struct{}

// Send 实现 Notifier
func (Nop) Send(context.Context, Notification) error { return nil }

// Multi 依次发送给多个通知器，汇总错误
type Multi []Notifier

// Send 实现 Notifier
func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher 后台发送通知，不阻塞主流程
type Dispatcher struct {
	notifier Notifier
	toName   string
	onError  func(*NotificationDispatchError)
}

// NewDispatcher 创建后台发送器
func NewDispatcher(n Notifier, toName string) *Dispatcher {
	if n == nil {
		n = Nop{}
	}
	return &Dispatcher{notifier: n, toName: toName}
}

// OnError 设置失败回调（指标统计使用）
func (d *Dispatcher) OnError(fn func(*NotificationDispatchError)) {
	d.onError = fn
}

// Dispatch 异步发送，kind 仅用于日志
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, n Notification) {
	if n.ToName == "" {
		n.ToName = d.toName
	}
	// 请求结束后仍需完成发送
	bg := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(bg, dispatchTimeout)
		defer cancel()
		d.send(sendCtx, kind, n)
	}()
}

// DispatchSync 同步发送，错误同样只记录日志（测试与命令行使用）
func (d *Dispatcher) DispatchSync(ctx context.Context, kind string, n Notification) {
	if n.ToName == "" {
		n.ToName = d.toName
	}
	d.send(ctx, kind, n)
}

func (d *Dispatcher) send(ctx context.Context, kind string, n Notification) {
	if err := d.notifier.Send(ctx, n); err != nil {
		dispatchErr := &NotificationDispatchError{Kind: kind, Err: err}
		slog.Error("通知发送失败", "kind", kind, "from", n.FromEmail, "error", err)
		if d.onError != nil {
			d.onError(dispatchErr)
		}
		return
	}
	slog.Info("通知已发送", "kind", kind, "from", n.FromEmail)
}
