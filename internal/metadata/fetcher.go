package metadata

import (
	"context"
	"fmt"
	"time"

	"kimchi-premium-tracker/internal/httpx"
)

// 上架信息请求参数
const (
	exchangeInfoTimeout = 12 * time.Second
	exchangeInfoRetries = 1
)

// Fetcher 上架信息获取器接口
type Fetcher interface {
	// FetchExchangeInfo 获取参考交易所上架信息
	FetchExchangeInfo(ctx context.Context, url string) ([]ExchangeSymbol, error)
}

// HTTPFetcher 通过重试 HTTP 客户端获取上架信息
type HTTPFetcher struct {
	client httpx.Getter
}

// NewHTTPFetcher 创建上架信息获取器
// 参数 client: 共享的重试 HTTP 客户端
func NewHTTPFetcher(client httpx.Getter) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// FetchExchangeInfo 获取参考交易所上架信息
// 参数 ctx: 上下文，用于取消请求
// 参数 url: exchangeInfo 地址
// 返回: 交易对列表；响应中没有任何交易对视为错误
func (f *HTTPFetcher) FetchExchangeInfo(ctx context.Context, url string) ([]ExchangeSymbol, error) {
	var resp ExchangeInfo
	err := f.client.GetJSON(ctx, url, &resp,
		httpx.WithTimeout(exchangeInfoTimeout),
		httpx.WithRetries(exchangeInfoRetries),
		httpx.WithLabel("exchangeInfo"))
	if err != nil {
		return nil, fmt.Errorf("请求上架信息失败: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("上架信息为空")
	}
	return resp.Symbols, nil
}
