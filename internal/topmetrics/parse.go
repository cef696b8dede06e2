package topmetrics

import (
	"strings"

	"github.com/shopspring/decimal"
)

// dig 按路径读取嵌套对象中的值
func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, k := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// toDecimal 将 JSON 值转换为 decimal
// 字符串中的千分位逗号、货币单位等非数字字符会被去掉；失败或非正数返回 false
func toDecimal(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case string:
		clean := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, x)
		var err error
		d, err = decimal.NewFromString(clean)
		if err != nil {
			return decimal.Zero, false
		}
	default:
		return decimal.Zero, false
	}
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// inRange 开区间判断
func inRange(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThan(lo) && v.LessThan(hi)
}

// usdToKRW 以汇率换算；任一为 0 返回 0
func usdToKRW(usd, fx decimal.Decimal) float64 {
	if !usd.IsPositive() || !fx.IsPositive() {
		return 0
	}
	return usd.Mul(fx).InexactFloat64()
}
