// Package router 提供 HTTP 路由配置
package router

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"

	"portfolio-srv/internal/handler"
	"portfolio-srv/internal/metrics"
	"portfolio-srv/internal/middleware"
)

const healthCheckResponse = `{"status":"ok"}`

//go:embed web
var webFS embed.FS

// Setup 配置所有路由
func Setup(api *handler.API, sessions *middleware.SessionStore, rateLimiter *middleware.RateLimiter, m *metrics.Metrics) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}

	logged := middleware.Logger(m)
	visitor := middleware.VisitorSession(sessions)
	// 所有 API 都需要识别访客
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(visitor(h)))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(visitor(middleware.AdminOnly(h))))
	}

	// 健康检查
	mux.HandleFunc("GET /isalive", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(healthCheckResponse)); err != nil {
			slog.Error("健康检查响应写入失败", "error", err)
		}
	})
	mux.Handle("GET /metrics", m.Handler())

	// 访客状态
	handle("GET /api/state", api.GetState)
	handle("PUT /api/preferences", api.PutPreferences)

	// 拼图
	handle("GET /api/puzzle", api.GetPuzzle)
	handle("POST /api/puzzle/move", api.MovePuzzle)
	handle("POST /api/puzzle/reset", api.ResetPuzzle)
	handle("POST /api/puzzle/winner", api.SubmitWinner)

	// 管理员暗门
	handle("POST /api/admin/activate", api.Activate)
	mux.Handle("POST /api/admin/secret", logged(visitor(middleware.RateLimit(rateLimiter)(http.HandlerFunc(api.SubmitSecret)))))
	handle("POST /api/admin/logout", api.Logout)
	admin("GET /api/admin/export", api.Export)
	admin("GET /api/stats", api.GetStats)

	// 留言板（审核类操作对非管理员静默忽略，不走 AdminOnly）
	handle("GET /api/feedback", api.ListFeedback)
	handle("POST /api/feedback", api.SubmitFeedback)
	handle("POST /api/feedback/{id}/like", api.LikeFeedback)
	handle("POST /api/feedback/{id}/approve", api.ApproveFeedback)
	handle("POST /api/feedback/{id}/star", api.StarFeedback)
	handle("DELETE /api/feedback/{id}", api.DeleteFeedback)

	// 获胜者
	handle("GET /api/winners", api.ListWinners)
	handle("DELETE /api/winners/{id}", api.DeleteWinner)

	// 实时订阅
	handle("GET /api/live/{collection}", api.LiveWebSocket)

	// 联系与推荐语
	handle("POST /api/contact", api.Contact)
	handle("POST /api/testimonials", api.PostTestimonial)
	handle("GET /api/testimonials", api.ListTestimonials)

	// 静态文件，其余路径回退到 index.html
	mux.Handle("GET /", logged(spaHandler(sub)))

	return mux, nil
}

// spaHandler 存在的静态文件直接返回，否则返回 index.html
func spaHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(r.URL.Path)[1:]
		if name != "" {
			if info, err := fs.Stat(fsys, name); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFileFS(w, r, fsys, "index.html")
	})
}
