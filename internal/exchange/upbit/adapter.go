package upbit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/httpx"
)

// ListingKey 上架信息缓存键
const ListingKey = "kimpview:upbitMarketsKRW"

// Config 适配器配置
type Config struct {
	// BaseURL API 或代理地址
	BaseURL string
	// BatchSize 每批行情请求的市场数
	BatchSize int
	// ColdCap 没有表格快照时的市场上限
	ColdCap int
	// WarmCap 已有表格快照时的市场上限
	WarmCap int
	// Must 必须包含的市场
	Must []string
	// ListingTimeout 上架信息请求超时
	ListingTimeout time.Duration
	// TickerTimeout 行情请求超时
	TickerTimeout time.Duration
}

// Adapter Upbit KRW 适配器
type Adapter struct {
	cfg     Config
	client  httpx.Getter
	listing *cache.TTLCache[[]Market]
	logger  *zap.Logger
}

// New 创建适配器
// 参数 listing: 上架信息缓存（6 小时，持久化）
func New(cfg Config, client httpx.Getter, listing *cache.TTLCache[[]Market], logger *zap.Logger) *Adapter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 60
	}
	if cfg.ColdCap <= 0 {
		cfg.ColdCap = 120
	}
	if cfg.WarmCap <= 0 {
		cfg.WarmCap = 400
	}
	if cfg.Must == nil {
		cfg.Must = DefaultMust
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = 12 * time.Second
	}
	if cfg.TickerTimeout <= 0 {
		cfg.TickerTimeout = 8 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:     cfg,
		client:  client,
		listing: listing,
		logger:  logger.Named("upbit"),
	}
}

// Name 交易所标识
func (a *Adapter) Name() string {
	return model.ExchangeUpbit
}

// FetchRows 拉取 KRW 市场行情
// 任一批次失败则整体返回空切片，避免不完整的表格覆盖完整快照
func (a *Adapter) FetchRows(ctx context.Context, warm bool) []model.Row {
	markets := KRWMarkets(a.listing.GetOrFetch(ctx, ListingKey, a.fetchListing))
	if len(markets) == 0 {
		a.logger.Warn("上架信息为空")
		return []model.Row{}
	}

	limit := a.cfg.ColdCap
	if warm {
		limit = a.cfg.WarmCap
	}
	selected := SelectMarkets(markets, a.cfg.Must, limit)

	names := make(map[string]string, len(markets))
	for _, m := range markets {
		names[m.Market] = m.KoreanName
	}

	rows := make([]model.Row, 0, len(selected))
	for _, batch := range Chunk(selected, a.cfg.BatchSize) {
		tickers, err := a.fetchTickers(ctx, batch)
		if err != nil {
			a.logger.Warn("拉取行情失败",
				zap.Int("batch", len(batch)),
				zap.Error(err))
			return []model.Row{}
		}
		for _, t := range tickers {
			rows = append(rows, ToRow(t, names))
		}
	}
	return rows
}

func (a *Adapter) fetchListing(ctx context.Context) ([]Market, error) {
	var markets []Market
	err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/v1/market/all?isDetails=false", &markets,
		httpx.WithTimeout(a.cfg.ListingTimeout),
		httpx.WithLabel("UPBIT markets"))
	if err != nil {
		return nil, fmt.Errorf("请求上架信息失败: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("上架信息为空")
	}
	return markets, nil
}

func (a *Adapter) fetchTickers(ctx context.Context, batch []string) ([]Ticker, error) {
	u := a.cfg.BaseURL + "/v1/ticker?markets=" + url.QueryEscape(strings.Join(batch, ","))
	var tickers []Ticker
	err := a.client.GetJSON(ctx, u, &tickers,
		httpx.WithTimeout(a.cfg.TickerTimeout),
		httpx.WithLabel("UPBIT ticker"))
	if err != nil {
		return nil, err
	}
	return tickers, nil
}
