// Package render 把排序后的行集合转换为展示层可直接应用的补丁帧。
//
// 没有展开的详情面板时整表重建（replace）；有面板展开时只对已挂载的行做原地更新（update），
// 保证面板所在位置不被重建打断。
package render

import (
	"strings"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/core/store"
	"kimchi-premium-tracker/internal/format"
	"kimchi-premium-tracker/internal/metadata"
)

// DefaultMaxOpenDetails 同时展开的详情面板上限
const DefaultMaxOpenDetails = 2

// 空表占位文案
const (
	PlaceholderNoFavorites = "즐겨찾기한 코인이 없습니다."
	PlaceholderNoResults   = "검색 결과가 없습니다."
	PlaceholderNoData      = "표시할 데이터가 없습니다."
)

// Context 决定空表占位文案的视图上下文
type Context struct {
	// FavoritesOnly 只看收藏
	FavoritesOnly bool
	// Query 搜索词
	Query string
}

// Placeholder 返回空表时的占位文案
func (c Context) Placeholder() string {
	switch {
	case c.FavoritesOnly:
		return PlaceholderNoFavorites
	case c.Query != "":
		return PlaceholderNoResults
	default:
		return PlaceholderNoData
	}
}

// Renderer 差量渲染器
// 非并发安全，由应用状态对象在自身锁内调用。
type Renderer struct {
	maxOpen int

	// open 已展开的详情面板（按展开顺序）
	open []string
	// mounted 上一次整表重建时挂载的行键
	mounted map[string]struct{}

	// visible 展示层上报的可见行键
	visible map[string]struct{}
	// visReady 是否收到过可见性上报
	visReady bool

	prices *store.PriceMemory
	seq    uint64
}

// New 创建渲染器
// 参数 maxOpen: 详情面板上限，<=0 使用默认值
func New(maxOpen int) *Renderer {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenDetails
	}
	return &Renderer{
		maxOpen: maxOpen,
		mounted: make(map[string]struct{}),
		visible: make(map[string]struct{}),
		prices:  store.NewPriceMemory(),
	}
}

// Render 生成一帧
// 参数 rows: 已过滤排序的视图行
// 参数 favorites: 收藏集合（标准化代码）
// 参数 ctx: 占位文案上下文
// 返回: 帧（只填写 Seq、Mode、Ops，其余字段由调用方补充）
func (r *Renderer) Render(rows []model.Row, favorites map[string]struct{}, ctx Context) model.Frame {
	r.seq++
	if len(r.open) > 0 {
		return model.Frame{Seq: r.seq, Mode: model.ModePatch, Ops: r.patch(rows, favorites)}
	}
	return model.Frame{Seq: r.seq, Mode: model.ModeFull, Ops: []model.PatchOp{r.rebuild(rows, favorites, ctx)}}
}

// Snapshot 生成一帧整表内容而不改变渲染器状态（不记录价格，不重置可见性）
// 用于新连接的展示层获取当前完整画面
func (r *Renderer) Snapshot(rows []model.Row, favorites map[string]struct{}, ctx Context) model.Frame {
	op := model.PatchOp{Op: model.OpReplace}
	if len(rows) == 0 {
		op.Placeholder = ctx.Placeholder()
	} else {
		op.Rows = make([]model.Cells, 0, len(rows))
		for i := range rows {
			c := r.format(&rows[i], favorites)
			op.Rows = append(op.Rows, c)
		}
	}
	return model.Frame{Seq: r.seq, Mode: model.ModeFull, Ops: []model.PatchOp{op}}
}

func (r *Renderer) rebuild(rows []model.Row, favorites map[string]struct{}, ctx Context) model.PatchOp {
	r.ResetVisibility()
	clear(r.mounted)

	if len(rows) == 0 {
		return model.PatchOp{Op: model.OpReplace, Placeholder: ctx.Placeholder()}
	}

	cells := make([]model.Cells, 0, len(rows))
	for i := range rows {
		c := r.cells(&rows[i], favorites)
		r.mounted[c.Key] = struct{}{}
		cells = append(cells, c)
	}
	return model.PatchOp{Op: model.OpReplace, Rows: cells}
}

func (r *Renderer) patch(rows []model.Row, favorites map[string]struct{}) []model.PatchOp {
	ops := make([]model.PatchOp, 0, len(rows))
	for i := range rows {
		key := rows[i].Key()
		if _, ok := r.mounted[key]; !ok {
			continue
		}
		if r.visReady && len(r.visible) > 0 {
			if _, ok := r.visible[key]; !ok {
				continue
			}
		}
		c := r.cells(&rows[i], favorites)
		ops = append(ops, model.PatchOp{Op: model.OpUpdate, Key: key, Cells: &c})
	}
	return ops
}

// cells 格式化单行，同时记录价格用于闪烁方向
func (r *Renderer) cells(row *model.Row, favorites map[string]struct{}) model.Cells {
	c := r.format(row, favorites)
	c.PriceFlash = r.prices.Direction(c.Key, row.PriceLocal)
	return c
}

func (r *Renderer) format(row *model.Row, favorites map[string]struct{}) model.Cells {
	key := row.Key()
	_, fav := favorites[metadata.CanonicalBase(row.Symbol)]
	return model.Cells{
		Key:             key,
		Symbol:          row.Symbol,
		Name:            row.Name,
		Favorite:        fav,
		DetailOpen:      r.IsOpen(key),
		Price:           format.KRW(row.PriceLocal),
		PriceReference:  format.KRW(row.LocalToReferenceLocal),
		Change:          format.PctValue(row.Change24hPct),
		ChangeTone:      format.Tone(row.Change24hPct),
		ChangeAbs:       format.DeltaKRW(row.Change24hAbs),
		Gap:             format.Pct(row.GapPct),
		GapTone:         format.GapTone(row.GapPct),
		GapAbs:          gapAbs(row.GapAbs),
		Volume:          format.KRWCompact(row.VolumeLocal),
		VolumeReference: format.KRWCompact(row.VolumeReferenceLocal),
		MarketCap:       format.McapKRW(row.MarketCapLocal),
		MarketCapUSD:    format.McapUSD(row.MarketCapReference),
	}
}

func gapAbs(p *float64) string {
	if p == nil {
		return ""
	}
	return format.KRWDiff(*p)
}

// ToggleDetail 切换详情面板
// 展开第 maxOpen+1 个面板时关闭最早展开的一个
// 返回: 切换后是否为展开状态
func (r *Renderer) ToggleDetail(key string) bool {
	key = normKey(key)
	if key == "" {
		return false
	}
	for i, k := range r.open {
		if k == key {
			r.open = append(r.open[:i], r.open[i+1:]...)
			return false
		}
	}
	for len(r.open) >= r.maxOpen {
		r.open = r.open[1:]
	}
	r.open = append(r.open, key)
	return true
}

// CloseDetails 关闭全部详情面板，下一次渲染整表重建
func (r *Renderer) CloseDetails() {
	r.open = r.open[:0]
}

// OpenDetails 已展开的面板（按展开顺序）
func (r *Renderer) OpenDetails() []string {
	out := make([]string, len(r.open))
	copy(out, r.open)
	return out
}

// IsOpen 面板是否展开
func (r *Renderer) IsOpen(key string) bool {
	key = normKey(key)
	for _, k := range r.open {
		if k == key {
			return true
		}
	}
	return false
}

// SetVisible 记录行的可见性
func (r *Renderer) SetVisible(key string, visible bool) {
	r.visReady = true
	key = normKey(key)
	if visible {
		r.visible[key] = struct{}{}
	} else {
		delete(r.visible, key)
	}
}

// ResetVisibility 清空可见性记录
func (r *Renderer) ResetVisibility() {
	clear(r.visible)
	r.visReady = false
}

// ForgetPrices 清空价格闪烁记忆
func (r *Renderer) ForgetPrices() {
	r.prices.Forget()
}

func normKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
