package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kimchi-premium-tracker/internal/core/calc"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/stats/latency"
)

// runCycle 执行一次刷新周期
//  1. 参考数据：可交易集合，随后并发拉取价格、成交额与市值
//  2. 本地交易所行集合（经取消保护）
//  3. 行集合为空时回退到表格快照
//  4. 计算派生字段、写入行集合并渲染
//  5. 新拉取的非空行集合写回表格快照
func (a *App) runCycle(ctx context.Context, force bool) {
	start := time.Now()
	ex := a.Exchange()
	guard, ok := a.guards[ex]
	if !ok {
		a.logger.Warn("没有可用的交易所适配器", zap.String("exchange", ex))
		return
	}

	ref := a.loadReference(ctx)
	if ctx.Err() != nil {
		return
	}

	warm := a.deps.Table.Has(ctx, ex)
	fetchStart := time.Now()
	rows := guard.FetchRows(ctx, warm)
	a.deps.Latency.Since(latency.SourceAdapter, fetchStart)

	if ctx.Err() != nil {
		return
	}
	if a.Exchange() != ex {
		a.logger.Debug("交易所已切换，丢弃本次结果", zap.String("exchange", ex))
		return
	}

	fromCache := false
	if len(rows) == 0 {
		if cached, ok := a.deps.Table.Load(ctx, ex); ok {
			rows = cached
			fromCache = true
			a.logger.Debug("行情为空，使用表格快照", zap.String("exchange", ex), zap.Int("rows", len(rows)))
		}
	}

	rate := a.deps.Metrics.Cached().Rate()
	calc.Annotate(rows, ref, rate, a.params)

	a.mu.Lock()
	if a.exchange != ex {
		a.mu.Unlock()
		return
	}
	a.rows.SetRows(ex, rows)
	frame := a.renderLocked()
	a.publishAndUnlock(frame)

	if len(rows) > 0 && !fromCache {
		a.deps.Table.Save(ctx, ex, rows)
	}

	elapsed := time.Since(start)
	a.deps.Latency.Observe(latency.SourceCycle, elapsed)
	a.writeCycle(CycleRecord{
		TsMs:            a.deps.Now(),
		Seq:             frame.Seq,
		Exchange:        ex,
		Rows:            len(rows),
		FromCache:       fromCache,
		ReferencePrices: len(ref.Prices),
		Rate:            rate,
		Summary:         frame.Summary,
		DurationMs:      float64(elapsed.Microseconds()) / 1000,
		Force:           force,
	})
}

// loadReference 先取可交易集合，再并发拉取价格、成交额与市值
// 三者都完成后才返回，计算器不会看到半份参考数据
func (a *App) loadReference(ctx context.Context) model.ReferenceData {
	start := time.Now()
	defer a.deps.Latency.Since(latency.SourceReference, start)

	active := a.deps.Reference.FetchActiveBases(ctx)

	var ref model.ReferenceData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref.Prices = a.deps.Reference.FetchReferencePrices(gctx, active)
		return nil
	})
	g.Go(func() error {
		ref.Volumes = a.deps.Reference.FetchReferenceVolumes(gctx, active)
		return nil
	})
	g.Go(func() error {
		ref.MarketCaps = a.deps.Caps.Fetch(gctx)
		return nil
	})
	_ = g.Wait()
	return ref
}
