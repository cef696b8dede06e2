package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/metadata"
	"kimchi-premium-tracker/internal/storage"
)

// FavoritesKey 收藏集合的存储键，不受版本变更影响
const FavoritesKey = "kimpview:favorites"

// Favorites 用户收藏的标的代码集合（标准化并应用别名后），无有效期
type Favorites struct {
	store  storage.Store
	logger *zap.Logger

	mu  sync.RWMutex
	set map[string]struct{}
}

// LoadFavorites 从存储恢复收藏集合，读取失败或损坏时为空集合
func LoadFavorites(ctx context.Context, store storage.Store, logger *zap.Logger) *Favorites {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Favorites{
		store:  store,
		logger: logger.Named("favorites"),
		set:    make(map[string]struct{}),
	}

	raw, err := store.Get(ctx, FavoritesKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			f.logger.Warn("读取收藏失败", zap.Error(err))
		}
		return f
	}
	var list []string
	if err := sonnet.Unmarshal(raw, &list); err != nil {
		f.logger.Debug("收藏数据损坏，使用空集合", zap.Error(err))
		return f
	}
	for _, s := range list {
		if n := metadata.CanonicalBase(s); n != "" {
			f.set[n] = struct{}{}
		}
	}
	return f
}

// Toggle 切换收藏状态并持久化
// 返回: 切换后是否为收藏
func (f *Favorites) Toggle(ctx context.Context, sym string) bool {
	key := metadata.CanonicalBase(sym)
	if key == "" {
		return false
	}

	f.mu.Lock()
	_, on := f.set[key]
	if on {
		delete(f.set, key)
	} else {
		f.set[key] = struct{}{}
	}
	list := f.listLocked()
	f.mu.Unlock()

	raw, err := sonnet.Marshal(list)
	if err == nil {
		err = f.store.Put(ctx, FavoritesKey, raw)
	}
	if err != nil {
		f.logger.Warn("保存收藏失败", zap.Error(err))
	}
	return !on
}

// Has 是否收藏
func (f *Favorites) Has(sym string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.set[metadata.CanonicalBase(sym)]
	return ok
}

// List 返回排序后的收藏列表
func (f *Favorites) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listLocked()
}

// Snapshot 返回收藏集合副本，供视图排序使用
func (f *Favorites) Snapshot() map[string]struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]struct{}, len(f.set))
	for k := range f.set {
		out[k] = struct{}{}
	}
	return out
}

func (f *Favorites) listLocked() []string {
	list := make([]string, 0, len(f.set))
	for k := range f.set {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}
