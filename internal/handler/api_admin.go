package handler

import (
	"errors"
	"net/http"
	"strconv"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/gate"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/pkg/utils"
)

// ActivateResponse 暗门点击结果
type ActivateResponse struct {
	Outcome string `json:"outcome"` // counted / prompt / loggedOut
	IsAdmin bool   `json:"isAdmin"`
}

// SecretRequest 口令请求
type SecretRequest struct {
	Secret string `json:"secret"`
}

// SecretResponse 口令结果
type SecretResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
	Remaining int    `json:"remaining,omitempty"`
}

func outcomeName(o gate.Outcome) string {
	switch o {
	case gate.PromptSecret:
		return "prompt"
	case gate.LoggedOut:
		return "loggedOut"
	default:
		return "counted"
	}
}

// Activate 处理 POST /api/admin/activate
// 对应空白格的一次点击，第 5 次点击弹出口令（管理员则直接退出）
func (a *API) Activate(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	outcome := v.Gate.Activate(a.now())
	utils.JSONResponse(w, http.StatusOK, ActivateResponse{
		Outcome: outcomeName(outcome),
		IsAdmin: v.IsAdmin(),
	})
}

// SubmitSecret 处理 POST /api/admin/secret
func (a *API) SubmitSecret(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	lang := v.State.Lang()
	ip := a.RateLimiter.ClientIP(r)

	var req SecretRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := v.Gate.SubmitSecret(req.Secret)
	switch {
	case err == nil:
		a.RateLimiter.ResetAttempts(ip)
		a.Metrics.SecretAttempts.WithLabelValues("ok").Inc()
		utils.JSONResponse(w, http.StatusOK, SecretResponse{Success: true, IsAdmin: true})
	case errors.Is(err, gate.ErrNotArmed):
		utils.JSONResponse(w, http.StatusConflict, SecretResponse{
			Message: i18n.T(lang, i18n.SecretNotArmed),
			IsAdmin: v.IsAdmin(),
		})
	default:
		a.Metrics.SecretAttempts.WithLabelValues("wrong").Inc()
		if a.RateLimiter.RecordAttempt(ip) {
			remaining := a.RateLimiter.GetLockRemainingTime(ip)
			w.Header().Set("Retry-After", utils.Seconds(remaining))
			utils.JSONResponse(w, http.StatusTooManyRequests, SecretResponse{
				Message: i18n.T(lang, i18n.TooManyAttempts),
			})
			return
		}
		utils.JSONResponse(w, http.StatusUnauthorized, SecretResponse{
			Message:   i18n.T(lang, i18n.WrongSecret),
			Remaining: a.RateLimiter.GetRemainingAttempts(ip),
		})
	}
}

// Logout 处理 POST /api/admin/logout
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	v.Gate.Logout()
	utils.JSONResponse(w, http.StatusOK, stateOf(v))
}

// StatsResponse 统计信息
type StatsResponse struct {
	*database.Stats
	ActiveGames    int `json:"activeGames"`
	CachedSessions int `json:"cachedSessions"`
	LiveFeedback   int `json:"liveFeedback"`
	LiveWinners    int `json:"liveWinners"`
}

// GetStats 处理 GET /api/stats（管理员）
func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.GetAllStats(r.Context(), a.Store, a.now())
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "获取统计信息失败", err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, StatsResponse{
		Stats:          stats,
		ActiveGames:    a.Games.Len(),
		CachedSessions: a.Sessions.Len(),
		LiveFeedback:   a.Hub.Subscribers(database.CollectionFeedback),
		LiveWinners:    a.Hub.Subscribers(database.CollectionWinners),
	})
}

// Export 处理 GET /api/admin/export（管理员）
// 打包下载全部留言与获胜者记录
func (a *API) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fb, err := a.Store.ListFeedback(ctx)
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "读取留言失败", err)
		return
	}
	winners, err := a.Store.ListWinners(ctx)
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "读取获胜者失败", err)
		return
	}

	now := a.now()
	data, err := utils.CreateZip([]utils.FileEntry{
		{Name: "feedback.json", Value: fb},
		{Name: "gameWinners.json", Value: winners},
	}, now)
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "生成导出文件失败", err)
		return
	}

	utils.ZipResponse(w, "portfolio-export-"+strconv.FormatInt(now.Unix(), 10)+".zip", data)
}
