// Package timeutil 提供时间相关的工具函数。
// 主要用于缓存信封的毫秒时间戳与可替换时钟（便于测试 TTL 逻辑）。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// Clock 返回当前 Unix 毫秒时间戳的时钟函数
// 缓存、表格缓存与渲染器都通过 Clock 取时间，测试中可注入假时钟
type Clock func() int64

// NowNano 获取当前时间的纳秒时间戳
// 使用“单调时钟 + 启动时 Unix 时间”组合实现，
// 系统时间跳变时缓存年龄不会变为负数。
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前时间的毫秒时间戳
// 缓存信封的 ts 字段使用毫秒
// 返回: 当前时间的 Unix 毫秒时间戳
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// OrNow 返回 c，若 c 为 nil 则返回 NowMs
func OrNow(c Clock) Clock {
	if c == nil {
		return NowMs
	}
	return c
}

// MsToTime 将毫秒时间戳转换为 time.Time
// 参数 ms: 毫秒时间戳
// 返回: time.Time 对象
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// FreshMs 判断时间戳在 ttl 内是否仍然有效
// 有效条件: 0 <= now - ts <= ttl
// 参数 ts: 写入时间（毫秒）
// 参数 now: 当前时间（毫秒）
// 参数 ttl: 有效期
func FreshMs(ts, now int64, ttl time.Duration) bool {
	if ts <= 0 || ttl <= 0 {
		return false
	}
	age := now - ts
	return age >= 0 && age <= ttl.Milliseconds()
}

// DurationMs 将 time.Duration 转换为毫秒浮点数
// 用于时延统计输出
func DurationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
