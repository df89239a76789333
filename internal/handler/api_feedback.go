package handler

import (
	"errors"
	"net/http"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/pkg/utils"
)

// SubmitFeedbackResponse 留言提交结果
type SubmitFeedbackResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Item    feedback.Item `json:"item"`
}

// ListFeedback 处理 GET /api/feedback
func (a *API) ListFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	viewer := v.Viewer()

	list, err := a.Board.List(r.Context(), viewer)
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "获取留言失败", err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, feedback.Project(list, viewer, v.State))
}

// SubmitFeedback 处理 POST /api/feedback
func (a *API) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	viewer := v.Viewer()

	var form feedback.Form
	if !decodeJSON(w, r, &form) {
		return
	}

	rec, err := a.Board.Submit(r.Context(), viewer, form)
	if err != nil {
		var validation *utils.ValidationError
		result := "error"
		if errors.As(err, &validation) {
			result = "invalid"
		}
		a.Metrics.FeedbackSubmissions.WithLabelValues(result).Inc()
		writeError(w, r, err)
		return
	}

	a.Metrics.FeedbackSubmissions.WithLabelValues("ok").Inc()
	item := feedback.Project([]database.Feedback{*rec}, viewer, v.State)[0]
	utils.JSONResponse(w, http.StatusOK, SubmitFeedbackResponse{
		Success: true,
		Message: i18n.T(viewer.Lang, i18n.FeedbackSubmitted),
		Item:    item,
	})
}

// LikeFeedback 处理 POST /api/feedback/{id}/like
func (a *API) LikeFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	if err := a.Board.Upvote(r.Context(), v.Viewer(), v.State, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	utils.SuccessResponse(w, "")
}

// ApproveFeedback 处理 POST /api/feedback/{id}/approve
// 非管理员请求静默忽略
func (a *API) ApproveFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	if err := a.Board.Approve(r.Context(), v.Viewer(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	utils.SuccessResponse(w, "")
}

// StarFeedback 处理 POST /api/feedback/{id}/star
func (a *API) StarFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	if err := a.Board.ToggleStar(r.Context(), v.Viewer(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	utils.SuccessResponse(w, "")
}

// DeleteFeedback 处理 DELETE /api/feedback/{id}?confirm=true
func (a *API) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	if err := a.Board.Delete(r.Context(), v.Viewer(), r.PathValue("id"), confirmed(r)); err != nil {
		writeError(w, r, err)
		return
	}
	utils.SuccessResponse(w, "")
}

// ListWinners 处理 GET /api/winners
// 访客得到空列表
func (a *API) ListWinners(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	list, err := game.ListWinners(r.Context(), a.Store, v.IsAdmin())
	if err != nil {
		utils.ErrorResponse(w, http.StatusInternalServerError, "获取获胜者失败", err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, list)
}

// DeleteWinner 处理 DELETE /api/winners/{id}?confirm=true
func (a *API) DeleteWinner(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	if err := game.DeleteWinner(r.Context(), a.Store, v.IsAdmin(), r.PathValue("id"), confirmed(r)); err != nil {
		writeError(w, r, err)
		return
	}
	utils.SuccessResponse(w, "")
}
