// Package marketcap 提供按标的代码索引的市值表（参考报价货币计价）。
package marketcap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/httpx"
	"kimchi-premium-tracker/internal/util/fastparse"
)

// CacheKey 市值缓存键
const CacheKey = "kimpview:capsCache:v1"

// Provider 市值提供者
// 上游为代理服务返回的扁平对象 {symbolOrBase: capUSD}
type Provider struct {
	url     string
	timeout time.Duration
	client  httpx.Getter
	cache   *cache.TTLCache[map[string]float64]
	logger  *zap.Logger
}

// New 创建市值提供者
// 参数 url: 代理地址，为空时 Fetch 始终返回空表
// 参数 c: 市值缓存（12 小时，持久化）
func New(url string, timeout time.Duration, client httpx.Getter, c *cache.TTLCache[map[string]float64], logger *zap.Logger) *Provider {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		url:     url,
		timeout: timeout,
		client:  client,
		cache:   c,
		logger:  logger.Named("marketcap"),
	}
}

// Fetch 返回市值表，失败时为旧值或空
func (p *Provider) Fetch(ctx context.Context) map[string]float64 {
	if p.url == "" {
		return nil
	}
	return p.cache.GetOrFetch(ctx, CacheKey, p.fetch)
}

func (p *Provider) fetch(ctx context.Context) (map[string]float64, error) {
	var raw map[string]any
	if err := p.client.GetJSON(ctx, p.url, &raw, httpx.WithTimeout(p.timeout), httpx.WithLabel("Caps")); err != nil {
		return nil, fmt.Errorf("请求市值失败: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("市值数据不是对象")
	}
	return Normalize(raw), nil
}

// Normalize 键转大写并丢弃非正数值
func Normalize(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if n := fastparse.Number(v); n > 0 {
			out[key] = n
		}
	}
	return out
}

// Lookup 先按本地代码查找，再按参考代码查找，返回第一个正数
func Lookup(caps map[string]float64, symbol, base string) float64 {
	if v := caps[strings.ToUpper(symbol)]; v > 0 {
		return v
	}
	if v := caps[strings.ToUpper(base)]; v > 0 {
		return v
	}
	return 0
}
