// Package app 持有看板的全部运行状态，协调刷新周期、视图命令与展示层。
//
// 所有可变状态由 App.mu 保护；行数据只在刷新周期末尾写入，命令处理只读取行数据并重新渲染。
// 展示层按帧序号顺序收到帧，Present 不得阻塞，也不得同步回调 App。
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/config"
	"kimchi-premium-tracker/internal/core/calc"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/core/render"
	"kimchi-premium-tracker/internal/core/store"
	"kimchi-premium-tracker/internal/core/view"
	"kimchi-premium-tracker/internal/exchange"
	"kimchi-premium-tracker/internal/output/jsonl"
	"kimchi-premium-tracker/internal/stats/latency"
	"kimchi-premium-tracker/internal/storage"
	"kimchi-premium-tracker/internal/topmetrics"
	"kimchi-premium-tracker/internal/util/timeutil"
)

var (
	// ErrUnknownExchange 未注册的本地交易所
	ErrUnknownExchange = errors.New("未知的交易所")
	// ErrUnknownSortKey 不支持的排序键
	ErrUnknownSortKey = errors.New("未知的排序键")
	// ErrUnknownCommand 不支持的命令
	ErrUnknownCommand = errors.New("未知的命令")
)

// ReferenceSource 参考交易所数据来源
type ReferenceSource interface {
	FetchActiveBases(ctx context.Context) map[string]struct{}
	FetchReferencePrices(ctx context.Context, active map[string]struct{}) map[string]float64
	FetchReferenceVolumes(ctx context.Context, active map[string]struct{}) map[string]float64
}

// CapsSource 市值数据来源
type CapsSource interface {
	Fetch(ctx context.Context) map[string]float64
}

// MetricsSource 顶部指标来源
type MetricsSource interface {
	// Fetch 拉取（或返回缓存中的）最新快照
	Fetch(ctx context.Context) topmetrics.Snapshot
	// Cached 不发起请求，只返回已有快照
	Cached() topmetrics.Snapshot
}

// Presenter 展示层
type Presenter interface {
	Present(frame model.Frame)
}

// PresenterFunc 函数形式的展示层
type PresenterFunc func(frame model.Frame)

// Present 实现 Presenter
func (f PresenterFunc) Present(frame model.Frame) { f(frame) }

// Deps 外部依赖，nil 字段在 New 中使用内存实现或空实现补齐
type Deps struct {
	Store      storage.Store
	Adapters   []exchange.Adapter
	Reference  ReferenceSource
	Caps       CapsSource
	Metrics    MetricsSource
	Table      *cache.TableCache
	Favorites  *cache.Favorites
	Latency    *latency.Tracker
	Cycles     *jsonl.Writer
	MetricsOut *jsonl.Writer
	Now        timeutil.Clock
}

// App 应用状态对象
type App struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	params calc.Params

	guards map[string]*exchange.Guard
	order  []string

	// mu 保护以下视图状态
	mu       sync.Mutex
	exchange string
	view     view.State
	renderer *render.Renderer
	rows     *store.Store

	// presentMu 保证帧按生成顺序交给展示层
	presentMu  sync.Mutex
	presenters []Presenter

	refreshMu    sync.Mutex
	loading      bool
	pending      bool
	pendingForce bool

	timerMu     sync.Mutex
	timerCancel context.CancelFunc

	ctx       context.Context
	cancel    context.CancelFunc
	lifeMu    sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 创建应用状态对象
// 参数 cfg: 已验证的配置
// 参数 deps: 外部依赖
// 参数 logger: 日志记录器
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("app")
	deps.Now = timeutil.OrNow(deps.Now)
	if deps.Store == nil {
		deps.Store = storage.NewMemoryStore()
	}
	if deps.Reference == nil {
		deps.Reference = nopReference{}
	}
	if deps.Caps == nil {
		deps.Caps = nopCaps{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Table == nil {
		deps.Table = cache.NewTableCache(deps.Store, config.Ms(cfg.Cache.TableTTLMs), deps.Now, logger)
	}
	if deps.Favorites == nil {
		deps.Favorites = cache.LoadFavorites(context.Background(), deps.Store, logger)
	}
	if deps.Latency == nil {
		deps.Latency = latency.NewTracker(1000)
	}

	a := &App{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		params: calc.Params{
			StablecoinCode: cfg.Calc.Stablecoin,
			GapLimitPct:    cfg.Calc.GapLimitPct,
		},
		guards:   make(map[string]*exchange.Guard, len(deps.Adapters)),
		view:     view.DefaultState(),
		renderer: render.New(cfg.Render.MaxOpenDetails),
		rows:     store.New(),
	}
	for _, ad := range deps.Adapters {
		name := ad.Name()
		if _, dup := a.guards[name]; dup {
			logger.Warn("重复的交易所适配器，忽略", zap.String("exchange", name))
			continue
		}
		a.guards[name] = exchange.NewGuard(ad)
		a.order = append(a.order, name)
	}

	a.exchange = cfg.UI.Exchange
	if _, ok := a.guards[a.exchange]; !ok && len(a.order) > 0 {
		a.exchange = a.order[0]
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

// AddPresenter 注册展示层
func (a *App) AddPresenter(p Presenter) {
	if p == nil {
		return
	}
	a.presentMu.Lock()
	a.presenters = append(a.presenters, p)
	a.presentMu.Unlock()
}

// Start 恢复表格快照并启动刷新
// ctx 取消等同于 Close 之前的停止信号，仍需调用 Close 释放资源
func (a *App) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	context.AfterFunc(ctx, a.cancel)

	a.restore()
	a.spawn(func() { a.refreshMetrics(a.ctx) })
	a.RequestRefresh(true)
	a.startTimers()

	if a.deps.MetricsOut != nil {
		every := config.Ms(a.cfg.Output.MetricsIntervalMs)
		a.spawn(func() { a.tick(a.ctx, every, a.writeMetrics) })
	}

	a.logger.Info("看板已启动",
		zap.String("exchange", a.Exchange()),
		zap.Strings("exchanges", a.order))
}

// restore 用表格快照立即渲染一帧
func (a *App) restore() {
	ex := a.Exchange()
	rows, ok := a.deps.Table.Load(a.ctx, ex)

	a.mu.Lock()
	if ok && a.exchange == ex {
		a.rows.SetRows(ex, rows)
		a.logger.Info("已从表格快照恢复", zap.String("exchange", ex), zap.Int("rows", len(rows)))
	}
	frame := a.renderLocked()
	a.publishAndUnlock(frame)
}

// Exchange 当前选择的交易所
func (a *App) Exchange() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exchange
}

// Exchanges 已注册的交易所（注册顺序）
func (a *App) Exchanges() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Rows 当前交易所的行集合副本（未过滤）
func (a *App) Rows() []model.Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rows.Rows(a.exchange)
}

// CurrentFrame 当前完整画面，不改变渲染状态
// 用于展示层新连接时的首帧
func (a *App) CurrentFrame() model.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.rows.Rows(a.exchange)
	favs := a.deps.Favorites.Snapshot()
	frame := a.renderer.Snapshot(view.Apply(rows, favs, a.view), favs, a.renderContext())
	a.decorate(&frame, rows)
	return frame
}

// Latency 延迟统计快照
func (a *App) Latency() []latency.Stats {
	return a.deps.Latency.Snapshot()
}

// renderLocked 从当前行集合渲染一帧，调用方持有 mu
func (a *App) renderLocked() model.Frame {
	rows := a.rows.Rows(a.exchange)
	favs := a.deps.Favorites.Snapshot()
	frame := a.renderer.Render(view.Apply(rows, favs, a.view), favs, a.renderContext())
	a.decorate(&frame, rows)
	return frame
}

func (a *App) renderContext() render.Context {
	return render.Context{FavoritesOnly: a.view.FavoritesOnly, Query: a.view.Query}
}

// decorate 补充帧的交易所、排序、汇总、标题与指标
// 汇总与标题基于未过滤的行集合
func (a *App) decorate(frame *model.Frame, rows []model.Row) {
	frame.Exchange = a.exchange
	if a.view.SortedOnce {
		frame.SortKey = a.view.SortKey
		frame.SortDir = a.view.SortDir
	}
	frame.Summary = calc.Summarize(rows, a.cfg.Calc.SummaryLimitPct)
	frame.Title = calc.TitleLine(rows)
	frame.Metrics = metricsText(a.deps.Metrics.Cached())
}

// publishAndUnlock 先取得 presentMu 再释放 mu，保证帧的交付顺序与生成顺序一致
func (a *App) publishAndUnlock(frame model.Frame) {
	a.presentMu.Lock()
	a.mu.Unlock()
	defer a.presentMu.Unlock()
	for _, p := range a.presenters {
		p.Present(frame)
	}
}

// spawn 在生命周期内启动 goroutine，关闭后返回 false
func (a *App) spawn(fn func()) bool {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.closed {
		return false
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
	return true
}

// tick 每隔 every 调用一次 fn，直到 ctx 取消
func (a *App) tick(ctx context.Context, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Close 停止计时器、取消进行中的请求、等待 goroutine 退出，再刷新输出并关闭存储
// 可重复调用，只有第一次生效
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.lifeMu.Lock()
		a.closed = true
		a.lifeMu.Unlock()

		a.cancel()
		a.stopTimers()
		for _, g := range a.guards {
			g.Cancel()
		}
		a.wg.Wait()

		var err error
		if a.deps.MetricsOut != nil {
			a.writeMetrics()
			err = multierr.Append(err, a.deps.MetricsOut.Close())
		}
		if a.deps.Cycles != nil {
			err = multierr.Append(err, a.deps.Cycles.Close())
		}
		err = multierr.Append(err, a.deps.Store.Close())
		a.closeErr = err
		a.logger.Info("看板已关闭")
	})
	return a.closeErr
}

type nopReference struct{}

func (nopReference) FetchActiveBases(context.Context) map[string]struct{} { return nil }
func (nopReference) FetchReferencePrices(context.Context, map[string]struct{}) map[string]float64 {
	return nil
}
func (nopReference) FetchReferenceVolumes(context.Context, map[string]struct{}) map[string]float64 {
	return nil
}

type nopCaps struct{}

func (nopCaps) Fetch(context.Context) map[string]float64 { return nil }

type nopMetrics struct{}

func (nopMetrics) Fetch(context.Context) topmetrics.Snapshot { return topmetrics.Snapshot{} }
func (nopMetrics) Cached() topmetrics.Snapshot               { return topmetrics.Snapshot{} }
