// Package bithumb 实现 Bithumb KRW 市场适配器。
package bithumb

// Market 上架信息
// API: GET /v1/market/all
type Market struct {
	// Market 市场代码，如 KRW-BTC
	Market string `json:"market"`
	// KoreanName 韩文名称
	KoreanName string `json:"korean_name"`
}

// TickerResponse 全市场行情响应
// API: GET /public/ticker/ALL_KRW
// data 中每个键是币种代码，值为行情对象；键 "date" 是时间戳字符串
type TickerResponse struct {
	// Status 状态码，"0000" 表示成功
	Status string `json:"status"`
	// Data 行情表
	Data map[string]any `json:"data"`
}

// Ticker 单个币种行情（数值字段均为字符串）
type Ticker struct {
	// ClosingPrice 最新价
	ClosingPrice float64
	// PrevClosingPrice 前一日收盘价
	PrevClosingPrice float64
	// FluctateRate24H 24 小时涨跌幅（百分比）
	FluctateRate24H float64
	// AccTradeValue24H 24 小时成交额
	AccTradeValue24H float64
}

// statusOK 成功状态码
const statusOK = "0000"
