package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/config"
	"kimchi-premium-tracker/internal/exchange"
	"kimchi-premium-tracker/internal/exchange/binance"
	"kimchi-premium-tracker/internal/exchange/bithumb"
	"kimchi-premium-tracker/internal/exchange/upbit"
	"kimchi-premium-tracker/internal/httpx"
	"kimchi-premium-tracker/internal/marketcap"
	"kimchi-premium-tracker/internal/metadata"
	"kimchi-premium-tracker/internal/output/jsonl"
	"kimchi-premium-tracker/internal/stats/latency"
	"kimchi-premium-tracker/internal/storage"
	"kimchi-premium-tracker/internal/topmetrics"
)

// 输出文件名
const (
	CyclesFile  = "cycles.jsonl"
	MetricsFile = "metrics.jsonl"
)

// latencyWindow 每个来源保留的延迟样本数
const latencyWindow = 1000

// Build 按配置装配全部依赖并创建 App
// 参数 ctx: 启动阶段使用的上下文（存储迁移、收藏恢复）
// 参数 cfg: 已验证的配置
// 参数 logger: 日志记录器
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	var cycles, metricsOut *jsonl.Writer
	defer func() {
		if err != nil {
			err = multierr.Combine(err, cycles.Close(), metricsOut.Close(), store.Close())
		}
	}()

	storage.Migrate(ctx, store, cfg.App.Version, []string{
		cache.TablePrefix,
		upbit.ListingKey,
		bithumb.ListingKey,
		marketcap.CacheKey,
		topmetrics.CacheKey,
	}, logger)

	client := httpx.New(httpx.Config{
		Timeout:        config.Ms(cfg.HTTP.TimeoutMs),
		Retries:        cfg.HTTP.RetryCount(),
		NetworkBackoff: config.Ms(cfg.HTTP.NetworkBackoffMs),
		StatusBackoff:  config.Ms(cfg.HTTP.StatusBackoffMs),
		UserAgent:      cfg.HTTP.UserAgent,
	}, logger)

	ttl := func(name string, ms int, persist bool) cache.Options {
		return cache.Options{Name: name, TTL: config.Ms(ms), Persist: persist, Store: store, Logger: logger}
	}

	adapters := []exchange.Adapter{
		upbit.New(upbit.Config{
			BaseURL:        cfg.Upbit.BaseURL,
			BatchSize:      cfg.Upbit.BatchSize,
			ColdCap:        cfg.Upbit.ColdCap,
			WarmCap:        cfg.Upbit.WarmCap,
			Must:           cfg.Upbit.Must,
			ListingTimeout: config.Ms(cfg.Upbit.ListingTimeoutMs),
			TickerTimeout:  config.Ms(cfg.Upbit.TickerTimeoutMs),
		}, client, cache.NewTTL[[]upbit.Market](ttl("upbit_listing", cfg.Cache.ListingTTLMs, true)), logger),
		bithumb.New(bithumb.Config{
			BaseURL: cfg.Bithumb.BaseURL,
			Timeout: config.Ms(cfg.Bithumb.TimeoutMs),
		}, client, cache.NewTTL[[]bithumb.Market](ttl("bithumb_listing", cfg.Cache.ListingTTLMs, true)), logger),
	}

	reference := binance.NewProvider(binance.Config{
		Endpoints:       cfg.Reference.Endpoints,
		ExchangeInfoURL: cfg.Reference.ExchangeInfoURL,
		Quote:           cfg.Reference.Quote,
		Timeout:         config.Ms(cfg.Reference.TimeoutMs),
	}, client, metadata.NewHTTPFetcher(client), binance.Caches{
		Prices:  cache.NewTTL[map[string]float64](ttl("reference_prices", cfg.Cache.ReferenceTTLMs, false)),
		Volumes: cache.NewTTL[map[string]float64](ttl("reference_volumes", cfg.Cache.ReferenceTTLMs, false)),
		Active:  cache.NewTTL[map[string]struct{}](ttl("reference_active", cfg.Cache.ActiveTTLMs, false)),
	}, logger)

	caps := marketcap.New(cfg.MarketCap.URL, config.Ms(cfg.MarketCap.TimeoutMs), client,
		cache.NewTTL[map[string]float64](ttl("market_caps", cfg.Cache.CapsTTLMs, true)), logger)

	fx := make([]topmetrics.FxSource, 0, len(cfg.TopMetrics.FxSources))
	for _, s := range cfg.TopMetrics.FxSources {
		fx = append(fx, topmetrics.FxSource{Name: s.Name, URL: s.URL, Path: s.Path})
	}
	metrics := topmetrics.New(topmetrics.Config{
		FxSources:        fx,
		UpbitUSDTURL:     cfg.TopMetrics.UpbitUSDTURL,
		BithumbTickerURL: cfg.TopMetrics.BithumbTickerURL,
		GlobalStatsURL:   cfg.TopMetrics.GlobalStatsURL,
		Timeout:          config.Ms(cfg.TopMetrics.TimeoutMs),
	}, client, cache.NewTTL[topmetrics.Snapshot](ttl("top_metrics", cfg.Cache.TopMetricsTTLMs, true)), nil, logger)

	if cfg.Output.CyclesEnabled {
		cycles, err = jsonl.NewWriter(filepath.Join(cfg.Output.Dir, CyclesFile), cfg.Output.BufferSize, logger)
		if err != nil {
			return nil, fmt.Errorf("创建周期记录输出失败: %w", err)
		}
	}
	if cfg.Output.MetricsEnabled {
		metricsOut, err = jsonl.NewWriter(filepath.Join(cfg.Output.Dir, MetricsFile), cfg.Output.BufferSize, logger)
		if err != nil {
			return nil, fmt.Errorf("创建指标输出失败: %w", err)
		}
	}

	return New(cfg, Deps{
		Store:      store,
		Adapters:   adapters,
		Reference:  reference,
		Caps:       caps,
		Metrics:    metrics,
		Table:      cache.NewTableCache(store, config.Ms(cfg.Cache.TableTTLMs), nil, logger),
		Favorites:  cache.LoadFavorites(ctx, store, logger),
		Latency:    latency.NewTracker(latencyWindow),
		Cycles:     cycles,
		MetricsOut: metricsOut,
	}, logger), nil
}

// openStore 打开持久化存储，文件所在目录不存在时先创建
func openStore(path string) (storage.Store, error) {
	if path != "" && path != storage.MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("创建存储目录失败: %w", err)
			}
		}
	}
	s, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return s, nil
}
