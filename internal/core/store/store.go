// Package store 保存每个本地交易所最近一次刷新的行集合，以及每个标的的上一次价格。
// 使用单写者模式：由应用状态对象在自身锁内写入，读取方拿到的是副本。
package store

import (
	"strings"

	"kimchi-premium-tracker/internal/core/model"
)

// Store 最新行集合缓存
type Store struct {
	// rows 按交易所缓存最近一次计算完成的行
	// key: exchange（upbit_krw/bithumb_krw）
	rows map[string][]model.Row
	// index 行键到下标的映射，与 rows 同步更新
	index map[string]map[string]int
}

// New 创建新的行集合缓存
func New() *Store {
	return &Store{
		rows:  make(map[string][]model.Row, 2),
		index: make(map[string]map[string]int, 2),
	}
}

// SetRows 替换交易所的行集合
// 参数 exchange: 交易所标识
// 参数 rows: 已计算派生字段的行；Store 保存其副本
func (s *Store) SetRows(exchange string, rows []model.Row) {
	if exchange == "" {
		return
	}
	cp := make([]model.Row, len(rows))
	copy(cp, rows)
	idx := make(map[string]int, len(cp))
	for i := range cp {
		idx[cp[i].Key()] = i
	}
	s.rows[exchange] = cp
	s.index[exchange] = idx
}

// Rows 返回交易所行集合的副本
func (s *Store) Rows(exchange string) []model.Row {
	src := s.rows[exchange]
	if len(src) == 0 {
		return nil
	}
	out := make([]model.Row, len(src))
	copy(out, src)
	return out
}

// Get 按行键获取单行
// 返回值可能为 nil；返回的指针应视为只读。
func (s *Store) Get(exchange, key string) *model.Row {
	idx, ok := s.index[exchange]
	if !ok {
		return nil
	}
	i, ok := idx[strings.ToUpper(strings.TrimSpace(key))]
	if !ok {
		return nil
	}
	return &s.rows[exchange][i]
}

// Len 交易所当前行数
func (s *Store) Len(exchange string) int {
	return len(s.rows[exchange])
}

// PriceMemory 记录每个行键上一次展示的价格，用于计算价格闪烁方向
type PriceMemory struct {
	prev map[string]float64
}

// NewPriceMemory 创建价格记忆
func NewPriceMemory() *PriceMemory {
	return &PriceMemory{prev: make(map[string]float64)}
}

// Direction 记录当前价格并返回相对上一次的方向
// 参数 key: 行键（大小写不敏感）
// 参数 price: 当前价格
// 返回: up、down；首次出现或价格未变时为空串
func (m *PriceMemory) Direction(key string, price float64) string {
	k := strings.ToUpper(key)
	prev, seen := m.prev[k]
	m.prev[k] = price
	if !seen {
		return ""
	}
	switch {
	case price > prev:
		return model.FlashUp
	case price < prev:
		return model.FlashDown
	}
	return ""
}

// Forget 清空价格记忆（切换交易所时使用）
func (m *PriceMemory) Forget() {
	clear(m.prev)
}
