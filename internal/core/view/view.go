// Package view 负责行集合的过滤与排序。
// 过滤按代码或名称做不区分大小写的子串匹配，排序时收藏行始终排在前面。
package view

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/metadata"
)

// 排序键
const (
	KeySymbol               = "symbol"
	KeyName                 = "name"
	KeyPriceLocal           = "priceLocal"
	KeyChange24hPct         = "change24hPct"
	KeyGapPct               = "gapPct"
	KeyVolumeLocal          = "volumeLocal"
	KeyMarketCapLocal       = "marketCapLocal"
	KeyVolumeReferenceLocal = "volumeReferenceLocal"
)

// 排序方向
const (
	DirAsc  = "asc"
	DirDesc = "desc"
)

// SortKeys 可选排序键（终端界面按此顺序循环切换）
var SortKeys = []string{
	KeyVolumeLocal,
	KeyGapPct,
	KeyChange24hPct,
	KeyPriceLocal,
	KeyMarketCapLocal,
	KeyVolumeReferenceLocal,
	KeySymbol,
	KeyName,
}

// State 过滤与排序状态
type State struct {
	// Query 搜索词
	Query string
	// FavoritesOnly 只显示收藏
	FavoritesOnly bool
	// SortKey 排序键
	SortKey string
	// SortDir 排序方向: asc, desc
	SortDir string
	// SortedOnce 用户是否主动排序过（决定表头是否显示方向标记）
	SortedOnce bool
}

// DefaultState 默认状态：按本地成交额降序
func DefaultState() State {
	return State{SortKey: KeyVolumeLocal, SortDir: DirDesc}
}

// ToggleSort 切换排序
// 同一键再次点击时反转方向；新键从降序开始
func (s *State) ToggleSort(key string) {
	if key == s.SortKey {
		if s.SortDir == DirAsc {
			s.SortDir = DirDesc
		} else {
			s.SortDir = DirAsc
		}
	} else {
		s.SortKey = key
		s.SortDir = DirDesc
	}
	s.SortedOnce = true
}

// Apply 过滤并排序，返回新切片，不修改输入
// 参数 rows: 当前行集合
// 参数 favorites: 收藏集合（标准化代码）
// 参数 st: 过滤与排序状态
func Apply(rows []model.Row, favorites map[string]struct{}, st State) []model.Row {
	q := strings.ToLower(strings.TrimSpace(st.Query))

	out := make([]model.Row, 0, len(rows))
	for i := range rows {
		r := rows[i]
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Symbol), q) &&
			!strings.Contains(strings.ToLower(r.Name), q) {
			continue
		}
		if st.FavoritesOnly && !isFavorite(favorites, r.Symbol) {
			continue
		}
		out = append(out, r)
	}

	less := comparator(st.SortKey)
	asc := st.SortDir == DirAsc
	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		af, bf := isFavorite(favorites, a.Symbol), isFavorite(favorites, b.Symbol)
		if af != bf {
			return af
		}
		c := less(a, b)
		if asc {
			return c < 0
		}
		return c > 0
	})
	return out
}

func isFavorite(favorites map[string]struct{}, sym string) bool {
	if len(favorites) == 0 {
		return false
	}
	_, ok := favorites[metadata.CanonicalBase(sym)]
	return ok
}

// comparator 返回按键比较两行的函数（负数表示 a 在升序中靠前）
func comparator(key string) func(a, b *model.Row) int {
	switch key {
	case KeySymbol, KeyName:
		// collate.Collator 非并发安全，每次排序单独创建
		col := collate.New(language.Korean)
		if key == KeySymbol {
			return func(a, b *model.Row) int { return col.CompareString(a.Symbol, b.Symbol) }
		}
		return func(a, b *model.Row) int { return col.CompareString(a.Name, b.Name) }
	}

	num := numeric(key)
	return func(a, b *model.Row) int {
		x, y := num(a), num(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
}

func numeric(key string) func(r *model.Row) float64 {
	switch key {
	case KeyPriceLocal:
		return func(r *model.Row) float64 { return r.PriceLocal }
	case KeyChange24hPct:
		return func(r *model.Row) float64 { return r.Change24hPct }
	case KeyGapPct:
		return func(r *model.Row) float64 {
			if r.GapPct == nil {
				return 0
			}
			return *r.GapPct
		}
	case KeyVolumeLocal:
		return func(r *model.Row) float64 { return r.VolumeLocal }
	case KeyMarketCapLocal:
		return func(r *model.Row) float64 { return r.MarketCapLocal }
	case KeyVolumeReferenceLocal:
		return func(r *model.Row) float64 { return r.VolumeReferenceLocal }
	}
	return func(*model.Row) float64 { return 0 }
}

// ValidKey 是否为已知排序键
func ValidKey(key string) bool {
	for _, k := range SortKeys {
		if k == key {
			return true
		}
	}
	return false
}
