package metadata

import "strings"

// ActiveBases 从上架列表中提取以 quote 报价且可交易的标的资产集合
// 参数 symbols: 交易对列表
// 参数 quote: 报价资产，如 USDT
// 返回: 大写的标的资产集合
func ActiveBases(symbols []ExchangeSymbol, quote string) map[string]struct{} {
	out := make(map[string]struct{}, len(symbols))
	for i := range symbols {
		s := &symbols[i]
		if !s.IsActive(quote) {
			continue
		}
		base := strings.ToUpper(strings.TrimSpace(s.BaseAsset))
		if base == "" {
			continue
		}
		out[base] = struct{}{}
	}
	return out
}
