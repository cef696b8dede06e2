// Package storage 提供本地持久化键值存储。
// 缓存快照、表格快照、收藏列表与版本标记都通过 Store 读写，
// 值统一使用带时间戳与校验和的信封编码（见 envelope.go）。
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("键不存在")
	// ErrCorrupt 持久化内容无法解析或校验失败
	ErrCorrupt = errors.New("持久化数据损坏")
)

// Store 键值存储接口
type Store interface {
	// Get 读取值，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put 写入或覆盖值
	Put(ctx context.Context, key string, value []byte) error
	// Delete 删除键，键不存在不是错误
	Delete(ctx context.Context, key string) error
	// DeletePrefix 删除所有以 prefix 开头的键，返回删除数量
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	// Close 释放资源
	Close() error
}

// Open 根据路径打开存储
// 参数 path: SQLite 文件路径；":memory:" 或空串使用内存存储
func Open(path string) (Store, error) {
	if path == "" || path == MemoryPath {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(path)
}

// MemoryPath 表示使用内存存储的路径
const MemoryPath = ":memory:"
