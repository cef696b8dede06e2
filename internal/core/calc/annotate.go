// Package calc 计算行的派生字段（参考价、价差、市值）以及价差汇总。
// 本包不做任何 I/O，相同输入总是得到相同输出。
package calc

import (
	"math"

	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/marketcap"
	"kimchi-premium-tracker/internal/metadata"
)

// Params 计算参数
type Params struct {
	// StablecoinCode 参考价恒为 1 的稳定币代码
	StablecoinCode string
	// GapLimitPct 价差绝对值达到该值视为数据异常，价差置空
	GapLimitPct float64
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{StablecoinCode: "USDT", GapLimitPct: 50}
}

// Annotate 就地写入每行的派生字段
// 参数 rows: 行集合（派生字段会被覆盖）
// 参数 ref: 参考价格、成交额与市值表
// 参数 rate: 本地报价汇率（1 单位参考报价货币对应的本地货币），0 表示未知
// 参数 p: 计算参数
func Annotate(rows []model.Row, ref model.ReferenceData, rate float64, p Params) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		rate = 0
	}
	for i := range rows {
		annotateRow(&rows[i], ref, rate, p)
	}
}

func annotateRow(r *model.Row, ref model.ReferenceData, rate float64, p Params) {
	r.ClearDerived()

	sym := metadata.Normalize(r.Symbol)
	base := metadata.ToReferenceBase(sym)

	isStable := base == p.StablecoinCode
	price, listed := ref.Prices[base]
	r.HasReference = isStable || listed

	switch {
	case isStable:
		r.PriceReference = 1
	case listed && positive(price):
		r.PriceReference = price
	}

	if r.PriceReference > 0 && rate > 0 {
		r.LocalToReferenceLocal = r.PriceReference * rate
	}

	if r.HasReference && rate > 0 {
		if vol := ref.Volumes[base]; positive(vol) {
			r.VolumeReferenceLocal = vol * rate
		}
	}

	if capUSD := marketcap.Lookup(ref.MarketCaps, sym, base); positive(capUSD) {
		r.MarketCapReference = capUSD
		if rate > 0 {
			r.MarketCapLocal = capUSD * rate
		}
	}

	if r.LocalToReferenceLocal > 0 {
		g := (r.PriceLocal/r.LocalToReferenceLocal - 1) * 100
		if math.IsNaN(g) || math.IsInf(g, 0) || math.Abs(g) >= p.GapLimitPct {
			return
		}
		abs := r.PriceLocal - r.LocalToReferenceLocal
		r.GapPct = &g
		r.GapAbs = &abs
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
