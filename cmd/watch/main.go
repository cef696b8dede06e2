// Package main 订阅看板的 WebSocket 推送，打印帧摘要或在终端中显示远端看板。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/feed"
	"kimchi-premium-tracker/internal/ui/tui"
)

// EnvURL 推送地址环境变量
const EnvURL = "KIMPVIEW_WATCH_URL"

func main() {
	_ = godotenv.Load()

	url := os.Getenv(EnvURL)
	if url == "" {
		url = "ws://127.0.0.1:8080/ws"
	}
	var (
		withUI   bool
		refresh  bool
		logLevel string
		every    time.Duration
	)
	flag.StringVar(&url, "url", url, "看板推送地址")
	flag.BoolVar(&withUI, "tui", false, "在终端中显示远端看板")
	flag.BoolVar(&refresh, "refresh", false, "连接后请求一次强制刷新")
	flag.StringVar(&logLevel, "log-level", "info", "日志级别")
	flag.DurationVar(&every, "metrics-every", 10*time.Second, "连接指标输出间隔")
	flag.Parse()

	logger := newLogger(logLevel, withUI)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := feed.NewClient(feed.Config{URL: url}, logger)
	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	err := client.Connect(startCtx)
	startCancel()
	if err != nil {
		logger.Error("连接看板失败", zap.Error(err))
		os.Exit(1)
	}
	go client.Run(ctx)
	defer client.Close()

	if refresh {
		if err := client.Send(app.Command{Cmd: app.CmdRefresh}); err != nil {
			logger.Warn("请求刷新失败", zap.Error(err))
		}
	}

	if withUI {
		ui := tui.New(tui.DispatcherFunc(client.Send), tui.Options{
			Exchanges: []string{model.ExchangeUpbit, model.ExchangeBithumb},
			OnQuit:    cancel,
		}, logger)
		go func() {
			for f := range client.Frames() {
				ui.Present(f)
			}
		}()
		if err := ui.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "终端界面退出: %v\n", err)
		}
		return
	}

	printLoop(ctx, client, every, logger)
}

// printLoop 把帧应用到本地镜像并输出摘要
func printLoop(ctx context.Context, client *feed.Client, every time.Duration, logger *zap.Logger) {
	table := feed.NewTable()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-client.Frames():
			if !ok {
				return
			}
			n := table.Apply(f)
			s := table.Summary()
			logger.Info("收到帧",
				zap.Uint64("seq", f.Seq),
				zap.String("mode", string(f.Mode)),
				zap.String("exchange", table.Exchange()),
				zap.Int("rows", len(table.Rows())),
				zap.Int("changed", n),
				zap.Bool("summary_valid", s.Valid),
				zap.Float64("avg_gap_pct", s.AvgPct),
				zap.String("fx", table.Metrics().FxKRW))
		case msg, ok := <-client.Errors():
			if ok {
				logger.Warn("命令失败", zap.String("error", msg))
			}
		case <-ticker.C:
			logger.Info("连接指标", zap.Any("metrics", client.Metrics()))
		}
	}
}

func newLogger(level string, quiet bool) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	if quiet {
		// 终端界面占用屏幕
		return zap.NewNop()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
