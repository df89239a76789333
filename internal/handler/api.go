// Package handler 提供 HTTP 接口处理器
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/metrics"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/internal/notify"
	"portfolio-srv/pkg/utils"
)

// maxBodySize 请求体上限
const maxBodySize = 64 * 1024

// API 接口处理器依赖
type API struct {
	Store        database.Store // 应为 *database.Live
	Hub          *database.Hub
	Board        *feedback.Board
	Games        *game.Registry
	Sessions     *middleware.SessionStore
	RateLimiter  *middleware.RateLimiter
	Metrics      *metrics.Metrics
	Notifier     *notify.Dispatcher
	Testimonials *Testimonials
	Now          func() time.Time
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// decodeJSON 解析请求体
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.FailResponse(w, http.StatusBadRequest, i18n.T(langOf(r), i18n.InvalidRequest))
		return false
	}
	return true
}

func langOf(r *http.Request) string {
	if v := middleware.GetVisitor(r); v != nil {
		return v.State.Lang()
	}
	return i18n.EN
}

// writeError 将领域错误映射为 HTTP 响应
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lang := langOf(r)

	var validation *utils.ValidationError
	switch {
	case errors.As(err, &validation):
		utils.FailResponse(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, database.ErrConfirmationRequired):
		utils.FailResponse(w, http.StatusPreconditionRequired, i18n.T(lang, i18n.ConfirmDelete))
	case errors.Is(err, database.ErrNotFound):
		utils.FailResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrSubmitInFlight):
		utils.FailResponse(w, http.StatusConflict, i18n.T(lang, i18n.SubmitInFlight))
	case errors.Is(err, game.ErrNotWon):
		utils.FailResponse(w, http.StatusConflict, i18n.T(lang, i18n.NotWon))
	default:
		// StoreWriteError 及其他存储错误
		utils.ErrorResponseJSON(w, http.StatusInternalServerError, i18n.T(lang, i18n.StoreWriteFailed), err)
	}
}

// confirmed 删除请求是否带确认参数
func confirmed(r *http.Request) bool {
	return r.URL.Query().Get("confirm") == "true"
}
