package binance

import (
	"strings"

	"kimchi-premium-tracker/internal/util/fastparse"
)

// baseOf 去掉报价后缀得到标的代码
// 返回: 标的代码与是否以 quote 结尾
func baseOf(symbol, quote string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.HasSuffix(s, quote) {
		return "", false
	}
	base := strings.TrimSuffix(s, quote)
	return base, base != ""
}

// ParsePrices 将最新价列表转换为 标的 -> 价格
// 只保留以 quote 报价的交易对
func ParsePrices(list []PriceTicker, quote string) map[string]float64 {
	out := make(map[string]float64, len(list))
	for _, t := range list {
		if base, ok := baseOf(t.Symbol, quote); ok {
			out[base] = fastparse.MustParseFloat(t.Price)
		}
	}
	return out
}

// ParseVolumes 将 24 小时统计列表转换为 标的 -> 报价资产成交额
func ParseVolumes(list []VolumeTicker, quote string) map[string]float64 {
	out := make(map[string]float64, len(list))
	for _, t := range list {
		if base, ok := baseOf(t.Symbol, quote); ok {
			out[base] = fastparse.MustParseFloat(t.QuoteVolume)
		}
	}
	return out
}

// FilterActive 按可交易集合过滤
// active 为空时不过滤（集合不可用不应导致全部丢弃）
// 返回: 新的映射，不修改输入
func FilterActive(m map[string]float64, active map[string]struct{}) map[string]float64 {
	out := make(map[string]float64, len(m))
	for base, v := range m {
		if len(active) > 0 {
			if _, ok := active[base]; !ok {
				continue
			}
		}
		out[base] = v
	}
	return out
}
