// Package metrics 定义 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio"

// Metrics 服务指标集合
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	PuzzleMoves         prometheus.Counter
	PuzzleWins          prometheus.Counter
	WinnerSubmissions   *prometheus.CounterVec
	FeedbackSubmissions *prometheus.CounterVec
	Likes               prometheus.Counter
	NotifyFailures      *prometheus.CounterVec
	SecretAttempts      *prometheus.CounterVec
	LiveSubscribers     *prometheus.GaugeVec
	ActiveGames         prometheus.GaugeFunc
}

// New 创建并注册指标；activeGames 返回当前拼图实例数
func New(activeGames func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP 请求数",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP 请求耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PuzzleMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "puzzle_moves_total", Help: "有效移动次数",
		}),
		PuzzleWins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "puzzle_wins_total", Help: "完成拼图次数",
		}),
		WinnerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "winner_submissions_total", Help: "获胜者表单提交",
		}, []string{"result"}),
		FeedbackSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feedback_submissions_total", Help: "留言提交",
		}, []string{"result"}),
		Likes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "feedback_likes_total", Help: "点赞次数",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_failures_total", Help: "通知发送失败",
		}, []string{"kind"}),
		SecretAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "admin_secret_attempts_total", Help: "管理员口令尝试",
		}, []string{"result"}),
		LiveSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_subscribers", Help: "实时订阅连接数",
		}, []string{"collection"}),
	}
	if activeGames == nil {
		activeGames = func() float64 { return 0 }
	}
	m.ActiveGames = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_games", Help: "内存中的拼图实例数",
	}, activeGames)

	reg.MustRegister(
		m.HTTPRequests, m.HTTPDuration, m.PuzzleMoves, m.PuzzleWins,
		m.WinnerSubmissions, m.FeedbackSubmissions, m.Likes, m.NotifyFailures,
		m.SecretAttempts, m.LiveSubscribers, m.ActiveGames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
