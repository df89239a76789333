package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEmailJSEndpoint EmailJS REST 发送接口
const DefaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJS 通过 EmailJS REST 接口发送模板邮件
type EmailJS struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
	Client     *http.Client
}

// NewEmailJS 创建 EmailJS 通知器
func NewEmailJS(serviceID, templateID, publicKey string) *EmailJS {
	return &EmailJS{
		Endpoint:   DefaultEmailJSEndpoint,
		ServiceID:  serviceID,
		TemplateID: templateID,
		PublicKey:  publicKey,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type emailJSRequest struct {
	ServiceID      string       `json:"service_id"`
	TemplateID     string       `json:"template_id"`
	UserID         string       `json:"user_id"`
	TemplateParams Notification `json:"template_params"`
}

// Send 实现 Notifier
func (e *EmailJS) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(emailJSRequest{
		ServiceID:      e.ServiceID,
		TemplateID:     e.TemplateID,
		UserID:         e.PublicKey,
		TemplateParams: n,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) { _ = Body.Close() }(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("emailjs 返回 %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
