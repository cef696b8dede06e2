// Package cache 提供带 TTL 的读穿缓存、表格快照缓存与收藏集合。
//
// TTLCache 的读取顺序: 内存 -> 持久化快照 -> 拉取函数。
// 拉取失败时返回最后一次的内存值（即使已过期），没有则返回零值，错误不向上传播。
// 同一 key 的并发未命中合并为一次拉取。
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"kimchi-premium-tracker/internal/storage"
	"kimchi-premium-tracker/internal/util/timeutil"
)

// Options TTL 缓存配置
type Options struct {
	// Name 数据集名称，用于日志
	Name string
	// TTL 有效期
	TTL time.Duration
	// Persist 是否读写持久化快照
	Persist bool
	// Store 持久化存储，Persist 为 false 时可为 nil
	Store storage.Store
	// Now 时钟，nil 使用系统时钟
	Now timeutil.Clock
	// Logger 日志记录器
	Logger *zap.Logger
}

type entry[T any] struct {
	value T
	ts    int64
}

// TTLCache 按数据集创建的泛型 TTL 缓存
type TTLCache[T any] struct {
	opts   Options
	now    timeutil.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]entry[T]
	group   singleflight.Group
}

// Fetcher 拉取函数
type Fetcher[T any] func(ctx context.Context) (T, error)

// NewTTL 创建 TTL 缓存
func NewTTL[T any](opts Options) *TTLCache[T] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Persist = false
	}
	return &TTLCache[T]{
		opts:    opts,
		now:     timeutil.OrNow(opts.Now),
		logger:  logger.Named("cache").With(zap.String("dataset", opts.Name)),
		entries: make(map[string]entry[T]),
	}
}

// GetOrFetch 读取 key 对应的值，必要时调用 fetch 刷新
// 参数 ctx: 上下文，传递给 fetch 与存储；并发未命中时使用首个调用者的 ctx
// 参数 key: 缓存键（同时作为持久化键）
// 参数 fetch: 拉取函数
// 返回: 新鲜值、过期的旧值或零值，从不返回错误
func (c *TTLCache[T]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[T]) T {
	if v, ok := c.fresh(key); ok {
		return v
	}
	res, _, _ := c.group.Do(key, func() (any, error) {
		return c.load(ctx, key, fetch), nil
	})
	v, _ := res.(T)
	return v
}

func (c *TTLCache[T]) fresh(key string) (T, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && timeutil.FreshMs(e.ts, c.now(), c.opts.TTL) {
		return e.value, true
	}
	var zero T
	return zero, false
}

// load 未命中路径：持久化快照 -> 拉取函数 -> 旧值或零值
func (c *TTLCache[T]) load(ctx context.Context, key string, fetch Fetcher[T]) T {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	// 前一次合并拉取可能刚刚完成
	if ok && timeutil.FreshMs(e.ts, now, c.opts.TTL) {
		return e.value
	}

	if c.opts.Persist {
		if v, ts, hit := c.loadPersisted(ctx, key, now); hit {
			c.mu.Lock()
			c.entries[key] = entry[T]{value: v, ts: ts}
			c.mu.Unlock()
			return v
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		c.logger.Warn("拉取失败，使用旧值",
			zap.String("key", key),
			zap.Bool("stale", ok),
			zap.Error(err))
		if ok {
			return e.value
		}
		var zero T
		return zero
	}

	ts := c.now()
	c.mu.Lock()
	c.entries[key] = entry[T]{value: v, ts: ts}
	c.mu.Unlock()

	if c.opts.Persist {
		c.persist(ctx, key, ts, v)
	}
	return v
}

// Peek 返回内存中的值与写入时间，不检查有效期
func (c *TTLCache[T]) Peek(key string) (T, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.value, e.ts, ok
}

// Invalidate 删除内存中的条目
func (c *TTLCache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// loadPersisted 读取并校验持久化快照；损坏或过期视为未命中
func (c *TTLCache[T]) loadPersisted(ctx context.Context, key string, now int64) (T, int64, bool) {
	var zero T
	raw, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Debug("读取快照失败", zap.String("key", key), zap.Error(err))
		}
		return zero, 0, false
	}

	var v T
	ts, err := storage.Decode(raw, &v)
	if err != nil {
		c.logger.Debug("快照损坏，视为未命中", zap.String("key", key), zap.Error(err))
		return zero, 0, false
	}
	if !timeutil.FreshMs(ts, now, c.opts.TTL) {
		return zero, 0, false
	}
	return v, ts, true
}

func (c *TTLCache[T]) persist(ctx context.Context, key string, ts int64, v T) {
	raw, err := storage.Encode(ts, v)
	if err != nil {
		c.logger.Warn("编码快照失败", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.opts.Store.Put(ctx, key, raw); err != nil {
		c.logger.Warn("写入快照失败", zap.String("key", key), zap.Error(err))
	}
}
