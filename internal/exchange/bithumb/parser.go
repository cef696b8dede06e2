package bithumb

import (
	"fmt"
	"sort"
	"strings"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/util/fastparse"
)

// NameMap 由上架信息构建 币种代码 -> 韩文名 映射，只保留 KRW 市场
func NameMap(markets []Market) map[string]string {
	out := make(map[string]string, len(markets))
	for _, m := range markets {
		quote, sym, ok := strings.Cut(m.Market, "-")
		if !ok || quote != "KRW" || sym == "" {
			continue
		}
		out[sym] = m.KoreanName
	}
	return out
}

// ParseTickers 解析全市场行情
// 跳过 "date" 键与非对象条目；数值字段宽松解析
// 返回: 币种代码 -> 行情
func ParseTickers(resp *TickerResponse) (map[string]Ticker, error) {
	if resp.Status != "" && resp.Status != statusOK {
		return nil, fmt.Errorf("Bithumb API 返回错误码: %s", resp.Status)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("行情数据为空")
	}
	out := make(map[string]Ticker, len(resp.Data))
	for sym, raw := range resp.Data {
		if sym == "date" {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out[sym] = Ticker{
			ClosingPrice:     fastparse.Number(obj["closing_price"]),
			PrevClosingPrice: fastparse.Number(obj["prev_closing_price"]),
			FluctateRate24H:  fastparse.Number(obj["fluctate_rate_24H"]),
			AccTradeValue24H: fastparse.Number(obj["acc_trade_value_24H"]),
		}
	}
	return out, nil
}

// ToRows 将行情映射为按代码排序的行集合
// 涨跌额 = 最新价 - 前收盘价，任一为 0 时记为 0
func ToRows(tickers map[string]Ticker, names map[string]string) []model.Row {
	syms := make([]string, 0, len(tickers))
	for sym := range tickers {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	rows := make([]model.Row, 0, len(syms))
	for _, sym := range syms {
		t := tickers[sym]
		var changeAbs float64
		if t.ClosingPrice != 0 && t.PrevClosingPrice != 0 {
			changeAbs = t.ClosingPrice - t.PrevClosingPrice
		}
		name := names[sym]
		if name == "" {
			name = sym
		}
		rows = append(rows, model.Row{
			Symbol:       sym,
			Name:         name,
			Exchange:     model.ExchangeBithumb,
			PriceLocal:   t.ClosingPrice,
			Change24hPct: t.FluctateRate24H,
			Change24hAbs: changeAbs,
			VolumeLocal:  t.AccTradeValue24H,
		})
	}
	return rows
}
