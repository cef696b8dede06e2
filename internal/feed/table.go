package feed

import "kimchi-premium-tracker/internal/core/model"

// Table 按帧维护的本地表格镜像
// replace 整表替换，update 按行键原地覆盖；非并发安全
type Table struct {
	seq         uint64
	exchange    string
	sortKey     string
	sortDir     string
	rows        []model.Cells
	index       map[string]int
	placeholder string
	title       string
	summary     model.Summary
	metrics     model.Metrics
}

// NewTable 创建空表格
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Apply 应用一帧
// 返回: 实际更新的行数（replace 为新行数）
func (t *Table) Apply(f model.Frame) int {
	t.seq = f.Seq
	t.exchange = f.Exchange
	t.sortKey = f.SortKey
	t.sortDir = f.SortDir
	t.title = f.Title
	t.summary = f.Summary
	t.metrics = f.Metrics

	n := 0
	for _, op := range f.Ops {
		switch op.Op {
		case model.OpReplace:
			t.rows = append(t.rows[:0], op.Rows...)
			clear(t.index)
			for i := range t.rows {
				t.index[t.rows[i].Key] = i
			}
			t.placeholder = op.Placeholder
			n = len(t.rows)
		case model.OpUpdate:
			i, ok := t.index[op.Key]
			if !ok || op.Cells == nil {
				continue
			}
			t.rows[i] = *op.Cells
			n++
		}
	}
	return n
}

// Rows 当前行（展示顺序）
func (t *Table) Rows() []model.Cells {
	out := make([]model.Cells, len(t.rows))
	copy(out, t.rows)
	return out
}

// Row 按行键查找
func (t *Table) Row(key string) (model.Cells, bool) {
	i, ok := t.index[key]
	if !ok {
		return model.Cells{}, false
	}
	return t.rows[i], true
}

// Seq 最后应用的帧序号
func (t *Table) Seq() uint64 { return t.seq }

// Exchange 当前交易所
func (t *Table) Exchange() string { return t.exchange }

// Sort 当前排序键与方向，未主动排序过时为空
func (t *Table) Sort() (key, dir string) { return t.sortKey, t.sortDir }

// Placeholder 空表占位文案
func (t *Table) Placeholder() string { return t.placeholder }

// Title 标题
func (t *Table) Title() string { return t.title }

// Summary 价差汇总
func (t *Table) Summary() model.Summary { return t.summary }

// Metrics 顶部指标
func (t *Table) Metrics() model.Metrics { return t.metrics }
