// Package upbit 实现 Upbit KRW 市场适配器。
package upbit

// Market 上架信息
// API: GET /v1/market/all?isDetails=false
type Market struct {
	// Market 市场代码，如 KRW-BTC
	Market string `json:"market"`
	// KoreanName 韩文名称
	KoreanName string `json:"korean_name"`
	// EnglishName 英文名称
	EnglishName string `json:"english_name,omitempty"`
}

// Ticker 行情
// API: GET /v1/ticker?markets=KRW-BTC,KRW-ETH
type Ticker struct {
	// Market 市场代码
	Market string `json:"market"`
	// TradePrice 最新成交价
	TradePrice float64 `json:"trade_price"`
	// SignedChangeRate 24 小时涨跌率（小数，0.01 表示 1%）
	SignedChangeRate float64 `json:"signed_change_rate"`
	// SignedChangePrice 24 小时涨跌额
	SignedChangePrice float64 `json:"signed_change_price"`
	// AccTradePrice24h 24 小时成交额
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
}
