// Package exchange 定义本地交易所适配器接口与按适配器的取消保护。
package exchange

import (
	"context"
	"sync"

	"kimchi-premium-tracker/internal/core/model"
)

// Adapter 本地交易所适配器
// FetchRows 尽力而为：任何失败都记录日志并返回空切片，不返回错误。
type Adapter interface {
	// Name 交易所标识，如 upbit_krw
	Name() string
	// FetchRows 拉取行集合
	// 参数 warm: 表格快照中已有该交易所的行时为 true，适配器可拉取更多交易对
	FetchRows(ctx context.Context, warm bool) []model.Row
}

// Guard 为单个适配器提供“新请求取消旧请求”的保护
// 同一适配器同时只有一个有效调用；被新调用取代的调用结果被丢弃。
type Guard struct {
	adapter Adapter

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewGuard 包装适配器
func NewGuard(a Adapter) *Guard {
	return &Guard{adapter: a}
}

// Name 返回被包装适配器的标识
func (g *Guard) Name() string {
	return g.adapter.Name()
}

// Begin 取消上一次仍在进行的调用，返回新调用的上下文与代号
func (g *Guard) Begin(ctx context.Context) (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	g.gen++
	g.cancel = cancel
	return cctx, g.gen
}

// finish 结束代号为 gen 的调用
// 返回: 该调用是否仍是最新调用
func (g *Guard) finish(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return false
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	return true
}

// FetchRows 通过保护调用适配器
// 返回: 被更新调用取代或上下文已取消时返回 nil
func (g *Guard) FetchRows(ctx context.Context, warm bool) []model.Row {
	cctx, gen := g.Begin(ctx)
	rows := g.adapter.FetchRows(cctx, warm)
	canceled := cctx.Err() != nil
	if !g.finish(gen) || canceled {
		return nil
	}
	return rows
}

// Cancel 取消正在进行的调用（关闭时使用）
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.gen++
}
