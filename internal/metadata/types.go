// Package metadata 负责交易对符号的标准化，以及参考交易所上架信息的获取与解析。
package metadata

// ExchangeInfo 参考交易所现货上架信息
// API: GET /api/v3/exchangeInfo
type ExchangeInfo struct {
	// Timezone 服务器时区
	Timezone string `json:"timezone"`
	// ServerTime 服务器时间
	ServerTime int64 `json:"serverTime"`
	// Symbols 交易对列表
	Symbols []ExchangeSymbol `json:"symbols"`
}

// ExchangeSymbol 参考交易所交易对信息
type ExchangeSymbol struct {
	// Symbol 交易对，如 BTCUSDT
	Symbol string `json:"symbol"`
	// Status 交易对状态: TRADING, BREAK, HALT
	Status string `json:"status"`
	// BaseAsset 标的资产，如 BTC
	BaseAsset string `json:"baseAsset"`
	// QuoteAsset 报价资产，如 USDT
	QuoteAsset string `json:"quoteAsset"`
}

// IsActive 判断交易对是否以 quote 报价且处于可交易状态
func (s *ExchangeSymbol) IsActive(quote string) bool {
	return s.QuoteAsset == quote && s.Status == "TRADING"
}
