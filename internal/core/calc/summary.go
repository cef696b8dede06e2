package calc

import (
	"math"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/format"
	"kimchi-premium-tracker/internal/metadata"
)

// DefaultSummaryLimitPct 汇总时忽略绝对值不小于该值的价差
const DefaultSummaryLimitPct = 10

// titleSuffix 标题固定后缀
const titleSuffix = "실시간 김프 김치프리미엄 - 김프뷰"

// Summarize 汇总价差：平均值、最小值与最大值
// 只统计价差非空且 |gap| < limitPct 的行；没有符合条件的行时 Valid 为 false
func Summarize(rows []model.Row, limitPct float64) model.Summary {
	var s model.Summary
	var sum float64
	for i := range rows {
		g := rows[i].GapPct
		if g == nil || math.IsNaN(*g) || math.Abs(*g) >= limitPct {
			continue
		}
		sym := metadata.Normalize(rows[i].Symbol)
		if s.Count == 0 || *g < s.Min.GapPct {
			s.Min = model.GapExtreme{Symbol: sym, GapPct: *g}
		}
		if s.Count == 0 || *g > s.Max.GapPct {
			s.Max = model.GapExtreme{Symbol: sym, GapPct: *g}
		}
		sum += *g
		s.Count++
	}
	if s.Count == 0 {
		return model.Summary{}
	}
	s.Valid = true
	s.AvgPct = sum / float64(s.Count)
	return s
}

// TitleLine 标题栏文本
// 例如 "+1.23% | 143,250,000 BTC/KRW | 실시간 김프 김치프리미엄 - 김프뷰"；
// 没有 BTC 行或价格为 0 时只返回后缀
func TitleLine(rows []model.Row) string {
	for i := range rows {
		if metadata.Normalize(rows[i].Symbol) != "BTC" {
			continue
		}
		price := format.TitlePriceKRW(rows[i].PriceLocal)
		if price == "" {
			break
		}
		return format.TitleChangePct(rows[i].Change24hPct) + " | " + price + " BTC/KRW | " + titleSuffix
	}
	return titleSuffix
}
