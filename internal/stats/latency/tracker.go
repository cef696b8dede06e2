// Package latency 统计刷新周期与各数据源请求的耗时。
// 每个来源（cycle、reference、adapter 等）维护独立的滚动窗口。
package latency

import (
	"sort"
	"sync"
	"time"
)

// 常用来源名
const (
	SourceCycle     = "cycle"
	SourceReference = "reference"
	SourceAdapter   = "adapter"
	SourceMetrics   = "metrics"
)

// Stats 耗时统计快照（滚动窗口）
// 单位：毫秒。
type Stats struct {
	// Source 来源名
	Source string `json:"source"`
	// Count 样本总数（累计）
	Count int64 `json:"count"`
	// LastMs 最近一次耗时
	LastMs float64 `json:"last_ms"`
	// P50Ms 窗口内 P50
	P50Ms float64 `json:"p50_ms"`
	// P90Ms 窗口内 P90
	P90Ms float64 `json:"p90_ms"`
	// P99Ms 窗口内 P99
	P99Ms float64 `json:"p99_ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	last  int64
	full  bool
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.count++
	w.last = v
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

// quantiles 返回窗口内的分位数（最近秩，下取整）
func (w *rollingWindow) quantiles(qs ...float64) []int64 {
	values := make([]int64, len(qs))
	if len(w.buf) == 0 {
		return values
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	n := len(tmp)
	for i, q := range qs {
		switch {
		case q <= 0:
			values[i] = tmp[0]
		case q >= 1:
			values[i] = tmp[n-1]
		default:
			values[i] = tmp[int(float64(n-1)*q)]
		}
	}
	return values
}

// Tracker 耗时追踪器（并发安全）
type Tracker struct {
	windowSize int

	mu      sync.Mutex
	sources map[string]*rollingWindow
}

// NewTracker 创建耗时追踪器
// 参数 windowSize: 每个来源的滚动窗口大小，用于 P50/P90/P99
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Tracker{
		windowSize: windowSize,
		sources:    make(map[string]*rollingWindow),
	}
}

// Observe 记录一次耗时
// 参数 source: 来源名
// 参数 d: 耗时，负值按 0 记录
func (t *Tracker) Observe(source string, d time.Duration) {
	if source == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.sources[source]
	if !ok {
		w = newRollingWindow(t.windowSize)
		t.sources[source] = w
	}
	w.add(int64(d))
}

// Since 记录从 start 到现在的耗时
func (t *Tracker) Since(source string, start time.Time) {
	t.Observe(source, time.Since(start))
}

// Stats 获取指定来源的统计快照，未知来源返回零值快照
func (t *Tracker) Stats(source string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.sources[source]
	if !ok {
		return Stats{Source: source}
	}
	qs := w.quantiles(0.50, 0.90, 0.99)
	return Stats{
		Source: source,
		Count:  w.count,
		LastMs: nsToMs(w.last),
		P50Ms:  nsToMs(qs[0]),
		P90Ms:  nsToMs(qs[1]),
		P99Ms:  nsToMs(qs[2]),
	}
}

// Snapshot 所有来源的统计，按来源名排序
func (t *Tracker) Snapshot() []Stats {
	t.mu.Lock()
	names := make([]string, 0, len(t.sources))
	for name := range t.sources {
		names = append(names, name)
	}
	t.mu.Unlock()

	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		out = append(out, t.Stats(name))
	}
	return out
}

func nsToMs(ns int64) float64 {
	return float64(ns) / 1_000_000.0
}
