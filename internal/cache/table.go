package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/storage"
	"kimchi-premium-tracker/internal/util/timeutil"
)

// TablePrefix 表格快照键前缀，版本变更时整体清除
const TablePrefix = "kimpview:tableCache:"

// DefaultTableTTL 表格快照默认有效期
const DefaultTableTTL = 10 * time.Second

// TableCache 按交易所保存最后一次成功计算的行集合
// 只在拉取失败或冷启动时作为回退数据读取
type TableCache struct {
	store  storage.Store
	ttl    time.Duration
	now    timeutil.Clock
	logger *zap.Logger
}

// NewTableCache 创建表格快照缓存
// 参数 ttl: 有效期，<=0 使用 DefaultTableTTL
func NewTableCache(store storage.Store, ttl time.Duration, now timeutil.Clock, logger *zap.Logger) *TableCache {
	if ttl <= 0 {
		ttl = DefaultTableTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableCache{
		store:  store,
		ttl:    ttl,
		now:    timeutil.OrNow(now),
		logger: logger.Named("table_cache"),
	}
}

// TableKey 返回交易所对应的快照键
func TableKey(exchange string) string {
	return TablePrefix + "v1:" + strings.ToLower(strings.TrimSpace(exchange))
}

// Load 读取快照
// 返回: 有效（未过期且非空）时返回行集合与 true；损坏视为未命中
func (t *TableCache) Load(ctx context.Context, exchange string) ([]model.Row, bool) {
	key := TableKey(exchange)
	raw, err := t.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Debug("读取表格快照失败", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var rows []model.Row
	ts, err := storage.Decode(raw, &rows)
	if err != nil {
		t.logger.Debug("表格快照损坏", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !timeutil.FreshMs(ts, t.now(), t.ttl) || len(rows) == 0 {
		return nil, false
	}
	return rows, true
}

// Has 快照是否有效，适配器据此选择预热上限
func (t *TableCache) Has(ctx context.Context, exchange string) bool {
	_, ok := t.Load(ctx, exchange)
	return ok
}

// Save 保存快照，空行集合被忽略
func (t *TableCache) Save(ctx context.Context, exchange string, rows []model.Row) {
	if len(rows) == 0 {
		return
	}
	key := TableKey(exchange)
	raw, err := storage.Encode(t.now(), rows)
	if err != nil {
		t.logger.Warn("编码表格快照失败", zap.Error(err))
		return
	}
	if err := t.store.Put(ctx, key, raw); err != nil {
		t.logger.Warn("写入表格快照失败", zap.String("key", key), zap.Error(err))
	}
}
