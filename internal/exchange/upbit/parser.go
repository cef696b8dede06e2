package upbit

import (
	"sort"
	"strings"

	"kimchi-premium-tracker/internal/core/model"
)

// localPrefix KRW 市场前缀
const localPrefix = "KRW-"

// DefaultMust 无论上限如何都会包含的高流动性市场
var DefaultMust = []string{
	"KRW-BTC", "KRW-ETH", "KRW-XRP", "KRW-SOL", "KRW-DOGE",
	"KRW-ADA", "KRW-BCH", "KRW-LTC", "KRW-TRX", "KRW-USDT",
}

// KRWMarkets 过滤出 KRW 市场
func KRWMarkets(markets []Market) []Market {
	out := make([]Market, 0, len(markets))
	for _, m := range markets {
		if strings.HasPrefix(m.Market, localPrefix) {
			out = append(out, m)
		}
	}
	return out
}

// SelectMarkets 选择本轮拉取的市场
// 先放入已上架的 must 市场，再按字典序补足剩余市场直到 limit
// 参数 markets: KRW 市场列表
// 参数 must: 必须包含的市场
// 参数 limit: 总数上限
func SelectMarkets(markets []Market, must []string, limit int) []string {
	listed := make(map[string]struct{}, len(markets))
	for _, m := range markets {
		listed[m.Market] = struct{}{}
	}

	out := make([]string, 0, limit)
	picked := make(map[string]struct{}, limit)
	for _, m := range must {
		if _, ok := listed[m]; !ok {
			continue
		}
		if _, dup := picked[m]; dup {
			continue
		}
		out = append(out, m)
		picked[m] = struct{}{}
	}

	rest := make([]string, 0, len(markets))
	for _, m := range markets {
		if _, ok := picked[m.Market]; !ok {
			rest = append(rest, m.Market)
		}
	}
	sort.Strings(rest)

	for _, m := range rest {
		if len(out) >= limit {
			break
		}
		if _, dup := picked[m]; dup {
			continue
		}
		out = append(out, m)
		picked[m] = struct{}{}
	}
	return out
}

// Chunk 将市场列表按 size 分批
func Chunk(list []string, size int) [][]string {
	if size <= 0 {
		size = len(list)
	}
	var out [][]string
	for i := 0; i < len(list); i += size {
		end := i + size
		if end > len(list) {
			end = len(list)
		}
		out = append(out, list[i:end])
	}
	return out
}

// ToRow 将行情映射为行
// 参数 names: 市场代码到韩文名的映射
func ToRow(t Ticker, names map[string]string) model.Row {
	symbol := strings.TrimPrefix(t.Market, localPrefix)
	name := names[t.Market]
	if name == "" {
		name = symbol
	}
	return model.Row{
		Symbol:       symbol,
		Name:         name,
		Exchange:     model.ExchangeUpbit,
		PriceLocal:   t.TradePrice,
		Change24hPct: t.SignedChangeRate * 100,
		Change24hAbs: t.SignedChangePrice,
		VolumeLocal:  t.AccTradePrice24h,
	}
}
