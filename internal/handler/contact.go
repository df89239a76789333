package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/notify"
	"portfolio-srv/pkg/utils"
)

// ContactRequest 联系表单
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Testimonial 推荐语
type Testimonial struct {
	Name    string    `json:"name"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// Testimonials 内存中的推荐语列表，重启后清空
type Testimonials struct {
	mu    sync.RWMutex
	items []Testimonial
}

// Add 追加
func (t *Testimonials) Add(item Testimonial) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, item)
}

// List 按提交顺序返回
func (t *Testimonials) List() []Testimonial {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.items == nil {
		return []Testimonial{}
	}
	return slices.Clone(t.items)
}

// Contact 处理 POST /api/contact
func (a *API) Contact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slog.Info("收到联系消息", "name", req.Name, "email", req.Email)

	if a.Notifier != nil && utils.ValidEmail(req.Email) {
		a.Notifier.Dispatch(r.Context(), "contact", notify.Notification{
			FromName:  req.Name,
			FromEmail: req.Email,
			Message:   req.Message,
		})
	}

	utils.SuccessResponse(w, i18n.T(langOf(r), i18n.ContactReceived))
}

// PostTestimonial 处理 POST /api/testimonials
func (a *API) PostTestimonial(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a.Testimonials.Add(Testimonial{Name: req.Name, Message: req.Message, Date: a.now()})
	slog.Info("收到推荐语", "name", req.Name)

	utils.SuccessResponse(w, i18n.T(langOf(r), i18n.TestimonialThanks))
}

// ListTestimonials 处理 GET /api/testimonials
func (a *API) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	utils.JSONResponse(w, http.StatusOK, a.Testimonials.List())
}
