package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/config"
	"kimchi-premium-tracker/internal/stats/latency"
)

// RequestRefresh 请求一次刷新周期
// 已有周期在进行时只记录一个待处理标记：无论期间请求多少次，当前周期结束后只追加一次周期。
// 参数 force: 强制刷新（切换交易所、启动时），待处理标记中保留强制语义
func (a *App) RequestRefresh(force bool) {
	a.refreshMu.Lock()
	if a.loading {
		a.pending = true
		a.pendingForce = a.pendingForce || force
		a.refreshMu.Unlock()
		return
	}
	a.loading = true
	a.refreshMu.Unlock()

	if !a.spawn(func() { a.refreshLoop(force) }) {
		a.refreshMu.Lock()
		a.loading = false
		a.refreshMu.Unlock()
	}
}

// Loading 是否有刷新周期正在进行
func (a *App) Loading() bool {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	return a.loading
}

func (a *App) refreshLoop(force bool) {
	for {
		a.runCycle(a.ctx, force)

		a.refreshMu.Lock()
		if !a.pending || a.ctx.Err() != nil {
			a.loading = false
			a.pending = false
			a.pendingForce = false
			a.refreshMu.Unlock()
			return
		}
		force = a.pendingForce
		a.pending = false
		a.pendingForce = false
		a.refreshMu.Unlock()
	}
}

// SetVisible 展示层可见性变化
// 不可见时停止两个计时器；重新可见时请求一次刷新并总是重启计时器，
// 已有周期在进行时该请求合并为其后的一次补刷
func (a *App) SetVisible(visible bool) {
	if !a.started.Load() {
		return
	}
	if !visible {
		a.stopTimers()
		a.logger.Debug("展示层不可见，暂停刷新")
		return
	}
	a.RequestRefresh(false)
	a.startTimers()
	a.logger.Debug("展示层可见，恢复刷新")
}

// startTimers 启动表格与指标计时器，已在运行时先停止旧计时器
func (a *App) startTimers() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timerCancel != nil {
		a.timerCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.timerCancel = cancel

	table := config.Ms(a.cfg.Refresh.TableIntervalMs)
	metrics := config.Ms(a.cfg.Refresh.MetricsIntervalMs)
	a.spawn(func() { a.tick(ctx, table, func() { a.RequestRefresh(false) }) })
	a.spawn(func() { a.tick(ctx, metrics, func() { a.refreshMetrics(ctx) }) })
}

func (a *App) stopTimers() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timerCancel != nil {
		a.timerCancel()
		a.timerCancel = nil
	}
}

// refreshMetrics 拉取顶部指标
// 汇率从未知变为可用时追加一次刷新，让价差尽快出现
func (a *App) refreshMetrics(ctx context.Context) {
	before := a.deps.Metrics.Cached().Rate()
	start := time.Now()
	snap := a.deps.Metrics.Fetch(ctx)
	a.deps.Latency.Since(latency.SourceMetrics, start)
	if ctx.Err() != nil {
		return
	}

	a.logger.Debug("顶部指标已更新",
		zap.Float64("fx", snap.FxKRW),
		zap.String("fx_source", snap.FxSource),
		zap.Float64("usdt", snap.UsdtKRW))

	if before <= 0 && snap.Rate() > 0 {
		a.RequestRefresh(false)
	}
}
