package app

import (
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/format"
	"kimchi-premium-tracker/internal/stats/latency"
	"kimchi-premium-tracker/internal/topmetrics"
)

// CycleRecord 每个刷新周期的 JSONL 记录
type CycleRecord struct {
	// TsMs 周期结束时间（毫秒）
	TsMs int64 `json:"ts_ms"`
	// Seq 本周期产生的帧序号
	Seq uint64 `json:"seq"`
	// Exchange 本地交易所
	Exchange string `json:"exchange"`
	// Rows 行数
	Rows int `json:"rows"`
	// FromCache 行集合是否来自表格快照
	FromCache bool `json:"from_cache"`
	// ReferencePrices 参考价格数量
	ReferencePrices int `json:"reference_prices"`
	// Rate 使用的本地报价汇率
	Rate float64 `json:"rate"`
	// Summary 价差汇总
	Summary model.Summary `json:"summary"`
	// DurationMs 周期耗时
	DurationMs float64 `json:"duration_ms"`
	// Force 是否为强制刷新
	Force bool `json:"force"`
}

// MetricsRecord 周期性指标快照
type MetricsRecord struct {
	// TsMs 采集时间（毫秒）
	TsMs int64 `json:"ts_ms"`
	// Exchange 当前交易所
	Exchange string `json:"exchange"`
	// Rows 当前行数
	Rows int `json:"rows"`
	// Favorites 收藏数量
	Favorites int `json:"favorites"`
	// Latency 各来源延迟统计
	Latency []latency.Stats `json:"latency"`
	// TopMetrics 顶部指标
	TopMetrics topmetrics.Snapshot `json:"top_metrics"`
	// CyclesDropped 周期记录因缓冲区满被丢弃的数量
	CyclesDropped int64 `json:"cycles_dropped"`
}

func (a *App) writeCycle(rec CycleRecord) {
	if a.deps.Cycles == nil {
		return
	}
	if err := a.deps.Cycles.Write(rec); err != nil {
		a.logger.Debug("写入周期记录失败", zap.Error(err))
	}
}

func (a *App) writeMetrics() {
	w := a.deps.MetricsOut
	if w == nil {
		return
	}
	a.mu.Lock()
	ex := a.exchange
	n := a.rows.Len(ex)
	a.mu.Unlock()

	rec := MetricsRecord{
		TsMs:       a.deps.Now(),
		Exchange:   ex,
		Rows:       n,
		Favorites:  len(a.deps.Favorites.List()),
		Latency:    a.deps.Latency.Snapshot(),
		TopMetrics: a.deps.Metrics.Cached(),
	}
	if a.deps.Cycles != nil {
		rec.CyclesDropped = a.deps.Cycles.Dropped()
	}
	if err := w.Write(rec); err != nil {
		a.logger.Debug("写入指标快照失败", zap.Error(err))
		return
	}
	_ = w.Flush()
}

// metricsText 顶部指标的展示文本
func metricsText(s topmetrics.Snapshot) model.Metrics {
	return model.Metrics{
		FxKRW:        format.FxKRW(s.FxKRW),
		FxSource:     s.FxSource,
		UsdtKRW:      format.RoundKRW(s.UsdtKRW),
		BtcDominance: format.Dominance(s.BtcDominance),
		TotalMcap:    format.KRWJoEok(s.TotalMcapKRW),
		SpotVolume:   format.KRWJoEok(s.SpotVolKRW),
		DerivVolume:  format.KRWJoEok(s.DerivVolKRW),
	}
}
