package handler

import (
	"errors"
	"net/http"

	"portfolio-srv/internal/game"
	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/internal/puzzle"
	"portfolio-srv/pkg/utils"
)

// PuzzleResponse 拼图状态
type PuzzleResponse struct {
	game.View
	Solved bool `json:"solved"`
}

func puzzleOf(v game.View) PuzzleResponse {
	return PuzzleResponse{View: v, Solved: puzzle.IsSolved(v.Board)}
}

// GetPuzzle 处理 GET /api/puzzle
func (a *API) GetPuzzle(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	utils.JSONResponse(w, http.StatusOK, puzzleOf(v.Game().View()))
}

// MoveRequest 移动请求
type MoveRequest struct {
	Index *int `json:"index"`
}

// MovePuzzle 处理 POST /api/puzzle/move
// 非法移动不报错，原样返回当前棋盘
func (a *API) MovePuzzle(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)

	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Index == nil {
		utils.FailResponse(w, http.StatusBadRequest, i18n.T(v.State.Lang(), i18n.InvalidRequest))
		return
	}

	utils.JSONResponse(w, http.StatusOK, puzzleOf(v.Game().Move(*req.Index)))
}

// ResetPuzzle 处理 POST /api/puzzle/reset
func (a *API) ResetPuzzle(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	utils.JSONResponse(w, http.StatusOK, puzzleOf(v.Game().Reset()))
}

// SubmitWinner 处理 POST /api/puzzle/winner
// 只接受本会话实例已完成拼图的提交
func (a *API) SubmitWinner(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)

	var form game.WinnerForm
	if !decodeJSON(w, r, &form) {
		return
	}

	lang := v.State.Lang()
	if err := v.Game().Submit(r.Context(), form, lang); err != nil {
		var validation *utils.ValidationError
		result := "error"
		if errors.As(err, &validation) {
			result = "invalid"
		}
		a.Metrics.WinnerSubmissions.WithLabelValues(result).Inc()
		writeError(w, r, err)
		return
	}

	a.Metrics.WinnerSubmissions.WithLabelValues("ok").Inc()
	utils.SuccessResponse(w, i18n.T(lang, i18n.WinnerSubmitted))
}
