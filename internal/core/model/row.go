// Package model 定义看板中使用的核心数据结构。
// 包含行情行、参考价格数据、渲染补丁与帧等核心类型。
package model

import "strings"

// Exchange 本地交易所标识常量
// 同时作为交易所选择键和表格缓存键的后缀
const (
	// ExchangeUpbit Upbit 韩元市场（本地交易所 A）
	ExchangeUpbit = "upbit_krw"
	// ExchangeBithumb Bithumb 韩元市场（本地交易所 B）
	ExchangeBithumb = "bithumb_krw"
)

// Row 单个资产在单个本地交易所上的行情行
// 每个刷新周期重新创建，派生字段由计算器原地填充
type Row struct {
	// Symbol 交易所本地的基础资产代码，如 BTC
	Symbol string `json:"symbol"`
	// Name 显示名称（韩文名），缺失时等于 Symbol
	Name string `json:"name"`
	// Exchange 所属本地交易所: upbit_krw, bithumb_krw
	Exchange string `json:"exchange"`

	// PriceLocal 本地报价货币（KRW）价格
	PriceLocal float64 `json:"price_local"`
	// PriceReference 参考交易所报价货币（USDT）单价，未知为 0
	PriceReference float64 `json:"price_reference"`
	// LocalToReferenceLocal 参考价格折算为本地货币后的价格，未知为 0
	LocalToReferenceLocal float64 `json:"reference_local"`

	// Change24hPct 24 小时涨跌幅（百分比）
	Change24hPct float64 `json:"change_24h_pct"`
	// Change24hAbs 24 小时涨跌额（本地货币）
	Change24hAbs float64 `json:"change_24h_abs"`

	// MarketCapLocal 本地货币计价的总市值，未知为 0
	MarketCapLocal float64 `json:"market_cap_local"`
	// MarketCapReference 参考货币计价的总市值，未知为 0
	MarketCapReference float64 `json:"market_cap_reference"`

	// VolumeLocal 本地交易所 24 小时成交额（本地货币）
	VolumeLocal float64 `json:"volume_local"`
	// VolumeReferenceLocal 参考交易所 24 小时成交额折算为本地货币，未知为 0
	VolumeReferenceLocal float64 `json:"volume_reference_local"`

	// GapPct 价差百分比（kimp），不可计算时为 nil
	GapPct *float64 `json:"gap_pct"`
	// GapAbs 价差绝对值（本地货币），与 GapPct 同时为 nil 或同时非 nil
	GapAbs *float64 `json:"gap_abs"`

	// HasReference 参考价格表是否包含该资产（稳定币恒为 true）
	HasReference bool `json:"has_reference"`
}

// Key 返回行的稳定键（大写 Symbol），用于渲染补丁匹配
func (r *Row) Key() string {
	return strings.ToUpper(strings.TrimSpace(r.Symbol))
}

// ClearDerived 清空所有派生字段
// 计算器在重新计算前调用，保证重复计算得到相同结果
func (r *Row) ClearDerived() {
	r.PriceReference = 0
	r.LocalToReferenceLocal = 0
	r.MarketCapLocal = 0
	r.MarketCapReference = 0
	r.VolumeReferenceLocal = 0
	r.GapPct = nil
	r.GapAbs = nil
	r.HasReference = false
}

// ReferenceData 一个刷新周期内的参考数据快照
// 三个映射表均以大写基础资产代码为键；返回后视为只读
type ReferenceData struct {
	// Prices 参考价格（参考报价货币单价）
	Prices map[string]float64
	// Volumes 参考交易所 24 小时报价货币成交额
	Volumes map[string]float64
	// MarketCaps 参考报价货币计价的市值（键为 symbol 或 base）
	MarketCaps map[string]float64
}
