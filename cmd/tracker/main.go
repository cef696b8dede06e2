// Package main 是泡菜溢价看板的入口点。
// 周期性拉取韩国交易所行情与海外参考价格，计算价差并通过 WebSocket 推送渲染帧，
// 可选在终端中直接显示。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/config"
	"kimchi-premium-tracker/internal/server"
	"kimchi-premium-tracker/internal/ui/tui"
)

// logFile 终端界面模式下的日志文件名（位于输出目录）
const logFile = "tracker.log"

func main() {
	// .env 只补充未设置的环境变量
	_ = godotenv.Load()

	var configPath string
	var headless bool
	flag.StringVar(&configPath, "config", os.Getenv(config.EnvConfig), "配置文件路径，为空时只使用默认值与环境变量")
	flag.BoolVar(&headless, "headless", false, "不启动终端界面，只提供 WebSocket 推送")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	withUI := cfg.UI.Enabled && !headless
	output := "stderr"
	if withUI {
		// 终端界面占用屏幕，日志改写到文件
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "创建输出目录失败: %v\n", err)
			os.Exit(1)
		}
		output = filepath.Join(cfg.Output.Dir, logFile)
	}
	logger := newLogger(cfg.App.LogLevel, output)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.Build(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Error("初始化失败", zap.Error(err))
		os.Exit(1)
	}

	hub := server.New(server.Config{
		Listen:       cfg.Server.Listen,
		PingInterval: config.Ms(cfg.Server.PingIntervalMs),
		WriteTimeout: config.Ms(cfg.Server.WriteTimeoutMs),
	}, a, logger)
	a.AddPresenter(hub)
	addr, err := hub.ListenAndServe()
	if err != nil {
		logger.Error("启动 WebSocket 服务失败", zap.Error(err))
		_ = a.Close()
		os.Exit(1)
	}

	var ui *tui.UI
	if withUI {
		ui = tui.New(a, tui.Options{Exchanges: a.Exchanges(), OnQuit: cancel}, logger)
		a.AddPresenter(ui)
	}

	a.Start(ctx)
	logger.Info("看板已启动",
		zap.String("exchange", a.Exchange()),
		zap.String("addr", addr.String()),
		zap.Bool("tui", withUI))

	if ui != nil {
		ui.Prime(a.CurrentFrame())
		if err := ui.Run(ctx); err != nil {
			logger.Error("终端界面退出", zap.Error(err))
		}
		cancel()
	}
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = multierr.Combine(hub.Shutdown(shutdownCtx), a.Close())
	if err != nil {
		logger.Warn("关闭时出现错误", zap.Error(err))
	}
	logger.Info("看板已退出", zap.Any("connections", hub.Metrics()))
}

func newLogger(level, output string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{output}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
