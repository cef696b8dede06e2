package bithumb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/httpx"
)

// ListingKey 上架信息缓存键
const ListingKey = "kimpview:bithumbMarketsKRW"

// Config 适配器配置
type Config struct {
	// BaseURL API 或代理地址
	BaseURL string
	// Timeout 单次请求超时
	Timeout time.Duration
}

// Adapter Bithumb KRW 适配器
// 全市场行情一次返回，不需要分批与上限
type Adapter struct {
	cfg     Config
	client  httpx.Getter
	listing *cache.TTLCache[[]Market]
	logger  *zap.Logger
}

// New 创建适配器
// 参数 listing: 上架信息缓存（用于韩文名，6 小时，持久化）
func New(cfg Config, client httpx.Getter, listing *cache.TTLCache[[]Market], logger *zap.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:     cfg,
		client:  client,
		listing: listing,
		logger:  logger.Named("bithumb"),
	}
}

// Name 交易所标识
func (a *Adapter) Name() string {
	return model.ExchangeBithumb
}

// FetchRows 拉取 KRW 全市场行情
// 名称表不可用时以代码作为名称；行情失败返回空切片
func (a *Adapter) FetchRows(ctx context.Context, _ bool) []model.Row {
	names := NameMap(a.listing.GetOrFetch(ctx, ListingKey, a.fetchListing))

	var resp TickerResponse
	err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/public/ticker/ALL_KRW", &resp,
		httpx.WithTimeout(a.cfg.Timeout),
		httpx.WithLabel("BITHUMB ticker/ALL_KRW"))
	if err != nil {
		a.logger.Warn("拉取行情失败", zap.Error(err))
		return []model.Row{}
	}

	tickers, err := ParseTickers(&resp)
	if err != nil {
		a.logger.Warn("解析行情失败", zap.Error(err))
		return []model.Row{}
	}
	return ToRows(tickers, names)
}

func (a *Adapter) fetchListing(ctx context.Context) ([]Market, error) {
	var markets []Market
	err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/v1/market/all", &markets,
		httpx.WithTimeout(a.cfg.Timeout),
		httpx.WithLabel("BITHUMB market/all"))
	if err != nil {
		return nil, fmt.Errorf("请求上架信息失败: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("上架信息为空")
	}
	return markets, nil
}
