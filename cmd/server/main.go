package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"portfolio-srv/internal/config"
	"portfolio-srv/internal/database"
	"portfolio-srv/internal/notify"
	"portfolio-srv/internal/puzzle"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载 .env 与环境变量并配置日志
func loadConfig() *config.Config {
	envErr := config.LoadEnvFile(".env")
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if envErr != nil {
		slog.Info("未找到 .env 文件，使用环境变量")
	}
	return cfg
}

func storeOptions(cfg *config.Config) database.Options {
	return database.Options{
		Driver:     cfg.StoreDriver,
		DSN:        cfg.DatabaseDSN(),
		SQLitePath: cfg.SQLitePath,
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "portfolio-srv",
		Short:         "作品集站点后端",
		Long:          "作品集站点后端：15 拼图、留言板、获胜者登记与实时订阅。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), loadConfig())
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 HTTP 服务（默认）",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), loadConfig())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "执行数据库迁移后退出",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := loadConfig()
				// Open 会在返回前完成迁移
				store, err := database.Open(cmd.Context(), storeOptions(cfg))
				if err != nil {
					return err
				}
				store.Close()
				slog.Info("数据库迁移完成", "driver", cfg.StoreDriver)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "立即清理过期访客状态",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := loadConfig()
				store, err := database.Open(cmd.Context(), storeOptions(cfg))
				if err != nil {
					return err
				}
				defer store.Close()
				return database.RunCleanup(cmd.Context(), store)
			},
		},
		shuffleCmd(),
		notifyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "打印版本信息",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), VersionInfo())
			},
		},
	)

	return cmd
}

func shuffleCmd() *cobra.Command {
	var (
		seed  int64
		moves int
	)
	cmd := &cobra.Command{
		Use:   "shuffle",
		Short: "生成一个打乱后的棋盘",
		Run: func(cmd *cobra.Command, args []string) {
			printBoard(cmd, puzzle.NewShuffler(seed, moves).Next())
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "随机种子，0 表示使用当前时间")
	cmd.Flags().IntVar(&moves, "moves", puzzle.DefaultShuffleMoves, "随机移动步数")
	return cmd
}

func notifyCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "通过已配置的渠道发送一条测试通知",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			n, closers, err := newNotifier(cfg)
			if err != nil {
				return err
			}
			defer func() {
				for _, c := range closers {
					_ = c()
				}
			}()

			failed := false
			d := notify.NewDispatcher(n, cfg.NotifyToName)
			d.OnError(func(*notify.NotificationDispatchError) { failed = true })
			d.DispatchSync(cmd.Context(), "test", notify.Notification{
				FromName:  "portfolio-srv",
				FromEmail: "noreply@localhost",
				Message:   message,
			})
			if failed {
				return fmt.Errorf("测试通知发送失败")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "测试通知", "通知内容")
	return cmd
}

func printBoard(cmd *cobra.Command, b puzzle.Board) {
	out := cmd.OutOrStdout()
	for i, v := range b {
		if v == 0 {
			fmt.Fprint(out, "  .")
		} else {
			fmt.Fprintf(out, "%3d", v)
		}
		if (i+1)%puzzle.Size == 0 {
			fmt.Fprintln(out)
		}
	}
}
