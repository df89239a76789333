package handler

import (
	"net/http"

	"portfolio-srv/internal/i18n"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/pkg/utils"
)

// StateResponse 访客状态
type StateResponse struct {
	SessionID string   `json:"sessionId"`
	IsAdmin   bool     `json:"isAdmin"`
	Theme     string   `json:"theme"`
	Lang      string   `json:"lang"`
	Liked     []string `json:"liked"`
}

func stateOf(v *middleware.Visitor) StateResponse {
	return StateResponse{
		SessionID: v.SessionID(),
		IsAdmin:   v.IsAdmin(),
		Theme:     v.State.Theme(),
		Lang:      v.State.Lang(),
		Liked:     v.State.Liked(),
	}
}

// GetState 处理 GET /api/state
func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	utils.JSONResponse(w, http.StatusOK, stateOf(middleware.GetVisitor(r)))
}

// PreferencesRequest 偏好设置，空字段表示不修改
type PreferencesRequest struct {
	Theme string `json:"theme"`
	Lang  string `json:"lang"`
}

// PutPreferences 处理 PUT /api/preferences
func (a *API) PutPreferences(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)

	var req PreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Theme != "" {
		if err := v.State.SetTheme(req.Theme); err != nil {
			utils.FailResponse(w, http.StatusBadRequest, i18n.T(v.State.Lang(), i18n.InvalidPreference))
			return
		}
	}
	if req.Lang != "" {
		if err := v.State.SetLang(req.Lang); err != nil {
			utils.FailResponse(w, http.StatusBadRequest, i18n.T(v.State.Lang(), i18n.InvalidPreference))
			return
		}
	}

	utils.JSONResponse(w, http.StatusOK, stateOf(v))
}
