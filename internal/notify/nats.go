package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject 默认发布主题
const DefaultSubject = "portfolio.notifications"

// publisher NATS 连接中用到的部分
type publisher interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATS 将通知发布到 NATS 主题，由外部邮件服务消费
type NATS struct {
	conn    publisher
	subject string
}

// DialNATS 连接 NATS 服务器
func DialNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("portfolio-srv"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败: %w", err)
	}
	return newNATS(nc, subject), nil
}

func newNATS(conn publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// Send 实现 Notifier
func (n *NATS) Send(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

// Close 排空并关闭连接
func (n *NATS) Close() error {
	return n.conn.Drain()
}
