package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// VersionKey 版本标记的存储键
const VersionKey = "kimpview:appVersion"

// Migrate 比较存储中的版本标记，不一致时清除 prefixes 下的所有键并写入新版本
// 收藏等不在 prefixes 中的键保持不变。存储错误只记录日志，不阻止启动。
// 参数 version: 当前应用版本
// 参数 prefixes: 版本变更时需要清除的键前缀
// 返回: 是否执行了清除
func Migrate(ctx context.Context, s Store, version string, prefixes []string, logger *zap.Logger) bool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("migrate")

	stored, err := s.Get(ctx, VersionKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Warn("读取版本标记失败", zap.Error(err))
	}
	if err == nil && string(stored) == version {
		return false
	}

	var total int64
	for _, p := range prefixes {
		n, err := s.DeletePrefix(ctx, p)
		if err != nil {
			logger.Warn("清除缓存失败", zap.String("prefix", p), zap.Error(err))
			continue
		}
		total += n
	}

	if err := s.Put(ctx, VersionKey, []byte(version)); err != nil {
		logger.Warn("写入版本标记失败", zap.Error(err))
	}

	logger.Info("版本变更，已清除缓存",
		zap.String("from", string(stored)),
		zap.String("to", version),
		zap.Int64("deleted", total))
	return true
}
