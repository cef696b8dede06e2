// Package binance 实现参考交易所（Binance 现货）价格与成交额提供者。
package binance

// PriceTicker 最新价
// API: GET /api/v3/ticker/price
type PriceTicker struct {
	// Symbol 交易对，如 BTCUSDT
	Symbol string `json:"symbol"`
	// Price 最新价（字符串）
	Price string `json:"price"`
}

// VolumeTicker 24 小时统计
// API: GET /api/v3/ticker/24hr
type VolumeTicker struct {
	// Symbol 交易对，如 BTCUSDT
	Symbol string `json:"symbol"`
	// QuoteVolume 24 小时报价资产成交额（字符串）
	QuoteVolume string `json:"quoteVolume"`
}

// 默认端点与路径
const (
	// PrimaryEndpoint 主端点（公开行情镜像）
	PrimaryEndpoint = "https://data-api.binance.vision"
	// MirrorEndpoint 备用端点
	MirrorEndpoint = "https://api.binance.com"
	// DefaultExchangeInfoURL 上架信息地址
	DefaultExchangeInfoURL = "https://api.binance.com/api/v3/exchangeInfo"

	pricePath  = "/api/v3/ticker/price"
	volumePath = "/api/v3/ticker/24hr"
)

// 缓存键
const (
	PriceKey  = "kimpview:binancePrice:v1"
	VolumeKey = "kimpview:binanceVol:v1"
	ActiveKey = "kimpview:binanceActive:v1"
)
