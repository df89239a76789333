package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"portfolio-srv/internal/config"
	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/handler"
	"portfolio-srv/internal/metrics"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/internal/notify"
	"portfolio-srv/internal/puzzle"
	"portfolio-srv/internal/router"
	"portfolio-srv/internal/scheduler"
	"portfolio-srv/pkg/utils"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// app 组装完成的服务
type app struct {
	store     database.Store
	hub       *database.Hub
	games     *game.Registry
	sessions  *middleware.SessionStore
	limiter   *middleware.RateLimiter
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	handler   http.Handler
	closers   []func() error
}

// newNotifier 按配置组合通知渠道，均未配置时不发送
func newNotifier(cfg *config.Config) (notify.Notifier, []func() error, error) {
	var (
		multi   notify.Multi
		closers []func() error
	)
	if cfg.EmailJSEnabled() {
		multi = append(multi, notify.NewEmailJS(cfg.EmailJSServiceID, cfg.EmailJSTemplateID, cfg.EmailJSPublicKey))
		slog.Info("已启用 EmailJS 通知")
	}
	if cfg.NATSURL != "" {
		nc, err := notify.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, nc)
		closers = append(closers, nc.Close)
		slog.Info("已启用 NATS 通知", "subject", cfg.NATSSubject)
	}
	if len(multi) == 0 {
		slog.Warn("未配置通知渠道，通知将被丢弃")
		return notify.Nop{}, closers, nil
	}
	return multi, closers, nil
}

// newApp 打开存储并装配全部组件
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	slog.Info("连接存储...", "driver", cfg.StoreDriver)
	store, err := database.Open(ctx, storeOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}

	notifier, closers, err := newNotifier(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化通知失败: %w", err)
	}

	a := &app{store: store, closers: closers}
	a.hub = database.NewHub(store)
	live := database.NewLive(store, a.hub)

	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyToName)

	a.games = game.NewRegistry(game.Deps{
		Shuffler: puzzle.NewShuffler(0, cfg.ShuffleMoves),
		Store:    live,
		Notifier: dispatcher,
		OnMove:   func() { a.metrics.PuzzleMoves.Inc() },
		OnWin:    func() { a.metrics.PuzzleWins.Inc() },
	})
	a.metrics = metrics.New(func() float64 { return float64(a.games.Len()) })

	dispatcher.OnError(func(e *notify.NotificationDispatchError) {
		a.metrics.NotifyFailures.WithLabelValues(e.Kind).Inc()
	})

	board := feedback.NewBoard(live, a.hub, dispatcher)
	board.OnLike(func() { a.metrics.Likes.Inc() })

	a.sessions = middleware.NewSessionStore(live, cfg.Verifier(), a.games)
	ips, err := utils.NewClientIPResolver(cfg.TrustedProxyList())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("解析可信代理失败: %w", err)
	}
	a.limiter = middleware.NewRateLimiter(cfg.MaxAttempts, cfg.LockDuration())
	a.limiter.SetClientIPResolver(ips)

	api := &handler.API{
		Store:        live,
		Hub:          a.hub,
		Board:        board,
		Games:        a.games,
		Sessions:     a.sessions,
		RateLimiter:  a.limiter,
		Metrics:      a.metrics,
		Notifier:     dispatcher,
		Testimonials: &handler.Testimonials{},
	}
	mux, err := router.Setup(api, a.sessions, a.limiter, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("配置路由失败: %w", err)
	}
	a.handler = mux

	a.scheduler = scheduler.New(store, a.games, a.sessions, cfg.GameIdle())
	return a, nil
}

// Close 释放限流器、通知渠道与存储
func (a *app) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Error("关闭通知渠道失败", "error", err)
		}
	}
	a.store.Close()
}

// serve 运行 HTTP 服务直到 ctx 结束
func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info(VersionInfo())

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("服务器启动", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务器错误: %w", err)
		}
		return nil
	})

	// 多实例部署时，其他实例写入的变更通过 LISTEN/NOTIFY 推送给本实例的订阅者
	if pg, ok := a.store.(*database.Postgres); ok {
		g.Go(func() error {
			// 监听失败只影响跨实例推送，本实例写入仍会刷新订阅
			if err := pg.Listen(gctx, a.hub); err != nil {
				slog.Error("变更监听退出", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("正在关闭服务器...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("服务器关闭失败: %w", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("服务器已关闭")
	return err
}
