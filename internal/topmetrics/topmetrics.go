// Package topmetrics 拉取看板顶部的慢速指标：美元汇率、USDT 韩元价格与全市场统计。
// 汇率同时作为价差计算的本地报价汇率。
package topmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/httpx"
	"kimchi-premium-tracker/internal/util/timeutil"
)

// CacheKey 指标快照缓存键
const CacheKey = "kimpview:topmetricsCache:v1"

// 有效区间（开区间）
var (
	fxMin   = decimal.NewFromInt(1000)
	fxMax   = decimal.NewFromInt(3000)
	usdtMin = decimal.NewFromInt(500)
	usdtMax = decimal.NewFromInt(5000)
)

// Snapshot 指标快照
type Snapshot struct {
	// FxKRW 美元兑韩元汇率，0 表示未知
	FxKRW float64 `json:"fxKRW"`
	// FxSource 汇率来源名称
	FxSource string `json:"fxSource"`
	// UsdtKRW USDT 韩元价格，0 表示未知
	UsdtKRW float64 `json:"usdtKRW"`
	// BtcDominance BTC 市值占比（百分比）
	BtcDominance float64 `json:"btcDominance"`
	// TotalMcapKRW 全市场总市值（韩元）
	TotalMcapKRW float64 `json:"totalMcapKRW"`
	// SpotVolKRW 现货 24 小时成交额（韩元）
	SpotVolKRW float64 `json:"spotVolKRW"`
	// DerivVolKRW 衍生品 24 小时成交额（韩元）
	DerivVolKRW float64 `json:"derivVolKRW"`
	// TsMs 拉取时间（毫秒）
	TsMs int64 `json:"ts"`
}

// Rate 价差计算使用的本地报价汇率：优先汇率，其次 USDT 价格
func (s Snapshot) Rate() float64 {
	if s.FxKRW > 0 {
		return s.FxKRW
	}
	if s.UsdtKRW > 0 {
		return s.UsdtKRW
	}
	return 0
}

// FxSource 汇率来源
type FxSource struct {
	// Name 来源名称
	Name string
	// URL 请求地址
	URL string
	// Path 响应中汇率字段的路径，如 ["rates", "KRW"]
	Path []string
}

// Config 指标提供者配置
type Config struct {
	// FxSources 依次尝试的汇率来源
	FxSources []FxSource
	// UpbitUSDTURL Upbit 代理的 KRW-USDT 行情地址
	UpbitUSDTURL string
	// BithumbTickerURL Bithumb 全市场行情地址
	BithumbTickerURL string
	// GlobalStatsURL 全市场统计地址，可为空
	GlobalStatsURL string
	// Timeout 单次请求超时
	Timeout time.Duration
}

// Provider 指标提供者
type Provider struct {
	cfg    Config
	client httpx.Getter
	cache  *cache.TTLCache[Snapshot]
	now    timeutil.Clock
	logger *zap.Logger
}

// New 创建指标提供者
// 参数 c: 快照缓存（60 秒，持久化，重启后立即恢复上次汇率）
func New(cfg Config, client httpx.Getter, c *cache.TTLCache[Snapshot], now timeutil.Clock, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		cache:  c,
		now:    timeutil.OrNow(now),
		logger: logger.Named("topmetrics"),
	}
}

// Fetch 返回指标快照，失败时为旧快照或零值
func (p *Provider) Fetch(ctx context.Context) Snapshot {
	return p.cache.GetOrFetch(ctx, CacheKey, p.load)
}

// Cached 返回内存中的快照（不发起请求）
func (p *Provider) Cached() Snapshot {
	s, _, _ := p.cache.Peek(CacheKey)
	return s
}

func (p *Provider) load(ctx context.Context) (Snapshot, error) {
	fx, source := p.loadFx(ctx)

	var usdt decimal.Decimal
	var global globalStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		usdt = p.loadUSDT(gctx)
		return nil
	})
	g.Go(func() error {
		global = p.loadGlobal(gctx)
		return nil
	})
	_ = g.Wait()

	if fx.IsZero() && usdt.IsZero() {
		return Snapshot{}, fmt.Errorf("汇率与 USDT 价格均不可用")
	}

	return Snapshot{
		FxKRW:        fx.InexactFloat64(),
		FxSource:     source,
		UsdtKRW:      usdt.InexactFloat64(),
		BtcDominance: global.dominance.InexactFloat64(),
		TotalMcapKRW: usdToKRW(global.mcapUSD, fx),
		SpotVolKRW:   usdToKRW(global.spotVolUSD, fx),
		DerivVolKRW:  usdToKRW(global.derivVolUSD, fx),
		TsMs:         p.now(),
	}, nil
}

// loadFx 依次尝试汇率来源，返回第一个落在有效区间内的值
func (p *Provider) loadFx(ctx context.Context) (decimal.Decimal, string) {
	for _, s := range p.cfg.FxSources {
		if s.URL == "" {
			continue
		}
		var body map[string]any
		if err := p.client.GetJSON(ctx, s.URL, &body, httpx.WithTimeout(p.cfg.Timeout), httpx.WithLabel("FX "+s.Name)); err != nil {
			p.logger.Debug("汇率来源失败", zap.String("source", s.Name), zap.Error(err))
			continue
		}
		v, ok := toDecimal(dig(body, s.Path...))
		if ok && inRange(v, fxMin, fxMax) {
			return v, s.Name
		}
		p.logger.Debug("汇率超出有效区间", zap.String("source", s.Name), zap.String("value", v.String()))
	}
	p.logger.Warn("所有汇率来源均不可用")
	return decimal.Zero, "none"
}

// loadUSDT 先取 Upbit 代理，再取 Bithumb 全市场行情中的 USDT
func (p *Provider) loadUSDT(ctx context.Context) decimal.Decimal {
	if p.cfg.UpbitUSDTURL != "" {
		var body map[string]any
		if err := p.client.GetJSON(ctx, p.cfg.UpbitUSDTURL, &body, httpx.WithTimeout(8*time.Second), httpx.WithLabel("USDT upbit")); err == nil {
			raw := body["trade_price"]
			if raw == nil {
				raw = body["price"]
			}
			if v, ok := toDecimal(raw); ok && inRange(v, usdtMin, usdtMax) {
				return v
			}
		}
	}
	if p.cfg.BithumbTickerURL != "" {
		var body map[string]any
		if err := p.client.GetJSON(ctx, p.cfg.BithumbTickerURL, &body, httpx.WithTimeout(8*time.Second), httpx.WithLabel("USDT bithumb")); err == nil {
			if v, ok := toDecimal(dig(body, "data", "USDT", "closing_price")); ok && inRange(v, usdtMin, usdtMax) {
				return v
			}
		}
	}
	return decimal.Zero
}

type globalStats struct {
	dominance   decimal.Decimal
	mcapUSD     decimal.Decimal
	spotVolUSD  decimal.Decimal
	derivVolUSD decimal.Decimal
}

func (p *Provider) loadGlobal(ctx context.Context) globalStats {
	var out globalStats
	if p.cfg.GlobalStatsURL == "" {
		return out
	}
	var body map[string]any
	if err := p.client.GetJSON(ctx, p.cfg.GlobalStatsURL, &body, httpx.WithTimeout(10*time.Second), httpx.WithLabel("global-stats")); err != nil {
		p.logger.Warn("全市场统计拉取失败", zap.Error(err))
		return out
	}
	out.dominance, _ = toDecimal(body["btcDominance"])
	out.mcapUSD, _ = toDecimal(body["totalMcapUsd"])
	out.spotVolUSD, _ = toDecimal(body["spotVolUsd"])
	out.derivVolUSD, _ = toDecimal(body["derivVolUsd"])
	return out
}
