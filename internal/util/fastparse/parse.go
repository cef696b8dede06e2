// Package fastparse 提供交易所数值字段的宽松解析函数。
// Bithumb 与 Binance 的价格、成交额以字符串返回，部分代理会带千分位逗号。
package fastparse

import (
	"math"
	"strconv"
	"strings"
)

// ParseFloat 解析浮点数字符串
// 参数 s: 待解析的字符串，如 "12345.67"
// 返回: 解析后的浮点数和可能的错误
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// MustParseFloat 解析浮点数，失败或非有限值时返回 0
// 参数 s: 待解析的字符串
// 返回: 解析后的浮点数，失败返回 0
func MustParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Lenient 宽松解析数值字符串
// 去掉千分位逗号、空白和货币单位等非数字字符后再解析，如 "1,380.50원" -> 1380.5
// 负号仅在首位保留；失败返回 0
func Lenient(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && i == 0:
			b.WriteRune(r)
		case r == 'e' || r == 'E' || r == '+':
			b.WriteRune(r)
		}
	}
	return MustParseFloat(b.String())
}

// Number 将 JSON 解码出的任意值转换为 float64
// 支持 float64、整数、字符串（宽松解析）；其他类型返回 0
func Number(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case float32:
		return Number(float64(x))
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		return Lenient(x)
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		return Number(f)
	default:
		return 0
	}
}

// FormatFloat 格式化浮点数为字符串
// 参数 f: 待格式化的浮点数
// 参数 prec: 小数位数，-1 表示最短表示
// 返回: 格式化后的字符串
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
