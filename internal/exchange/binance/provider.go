package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/httpx"
	"kimchi-premium-tracker/internal/metadata"
)

// Config 提供者配置
type Config struct {
	// Endpoints 依次尝试的端点（主端点在前）
	Endpoints []string
	// ExchangeInfoURL 上架信息地址
	ExchangeInfoURL string
	// Quote 参考报价资产，默认 USDT
	Quote string
	// Timeout 行情请求超时
	Timeout time.Duration
}

// Caches 提供者使用的三个数据集缓存
type Caches struct {
	Prices  *cache.TTLCache[map[string]float64]
	Volumes *cache.TTLCache[map[string]float64]
	Active  *cache.TTLCache[map[string]struct{}]
}

// Provider 参考价格提供者
type Provider struct {
	cfg     Config
	client  httpx.Getter
	fetcher metadata.Fetcher
	caches  Caches
	logger  *zap.Logger
}

// NewProvider 创建参考价格提供者
// 参数 fetcher: 上架信息获取器，用于可交易集合
func NewProvider(cfg Config, client httpx.Getter, fetcher metadata.Fetcher, caches Caches, logger *zap.Logger) *Provider {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{PrimaryEndpoint, MirrorEndpoint}
	}
	if cfg.ExchangeInfoURL == "" {
		cfg.ExchangeInfoURL = DefaultExchangeInfoURL
	}
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:     cfg,
		client:  client,
		fetcher: fetcher,
		caches:  caches,
		logger:  logger.Named("reference"),
	}
}

// FetchActiveBases 可交易标的集合（60 秒缓存）
// 失败时返回旧集合或 nil，nil 表示不过滤
func (p *Provider) FetchActiveBases(ctx context.Context) map[string]struct{} {
	return p.caches.Active.GetOrFetch(ctx, ActiveKey, func(ctx context.Context) (map[string]struct{}, error) {
		syms, err := p.fetcher.FetchExchangeInfo(ctx, p.cfg.ExchangeInfoURL)
		if err != nil {
			return nil, err
		}
		set := metadata.ActiveBases(syms, p.cfg.Quote)
		if len(set) == 0 {
			return nil, fmt.Errorf("没有可交易的 %s 交易对", p.cfg.Quote)
		}
		return set, nil
	})
}

// FetchReferencePrices 参考价格（3 秒缓存）
// 参数 active: 可交易集合，为空时不过滤
// 返回: 标的 -> 报价资产价格；完全失败时为旧值或空
func (p *Provider) FetchReferencePrices(ctx context.Context, active map[string]struct{}) map[string]float64 {
	all := p.caches.Prices.GetOrFetch(ctx, PriceKey, func(ctx context.Context) (map[string]float64, error) {
		var out map[string]float64
		err := p.tryEndpoints(ctx, pricePath, func(ctx context.Context, url string) error {
			var list []PriceTicker
			if err := p.client.GetJSON(ctx, url, &list, httpx.WithTimeout(p.cfg.Timeout), httpx.WithLabel("BINANCE price")); err != nil {
				return err
			}
			out = ParsePrices(list, p.cfg.Quote)
			return nil
		})
		return out, err
	})
	return FilterActive(all, active)
}

// FetchReferenceVolumes 参考 24 小时成交额（3 秒缓存）
func (p *Provider) FetchReferenceVolumes(ctx context.Context, active map[string]struct{}) map[string]float64 {
	all := p.caches.Volumes.GetOrFetch(ctx, VolumeKey, func(ctx context.Context) (map[string]float64, error) {
		var out map[string]float64
		err := p.tryEndpoints(ctx, volumePath, func(ctx context.Context, url string) error {
			var list []VolumeTicker
			if err := p.client.GetJSON(ctx, url, &list, httpx.WithTimeout(p.cfg.Timeout), httpx.WithLabel("BINANCE 24hr")); err != nil {
				return err
			}
			out = ParseVolumes(list, p.cfg.Quote)
			return nil
		})
		return out, err
	})
	return FilterActive(all, active)
}

// tryEndpoints 依次尝试各端点，第一个成功即返回
func (p *Provider) tryEndpoints(ctx context.Context, path string, fn func(ctx context.Context, url string) error) error {
	var errs error
	for _, ep := range p.cfg.Endpoints {
		url := strings.TrimRight(ep, "/") + path
		err := fn(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("端点失败，尝试下一个", zap.String("url", url), zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	return fmt.Errorf("所有端点均失败: %w", errs)
}
