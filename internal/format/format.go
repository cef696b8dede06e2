// Package format 将原始数值转换为展示用字符串。
// 所有函数均为纯函数；0、NaN、Inf 输入一般返回空字符串，由展示层显示为空白单元格。
// 小数舍入统一使用 decimal（四舍五入，远离零），整数部分按 3 位插入逗号。
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"kimchi-premium-tracker/internal/core/model"
)

const (
	oneJo      = 1e12
	oneEok     = 1e8
	tenMillion = 1e7
	oneMan     = 1e4
)

// KRW 格式化本地货币价格
// 位数规则: >=100 取整；<0.001 保留 10 位；<1 保留 6 位；其余 2 位
// 参数 v: 价格
// 返回: 如 "₩143,250,000"，0 返回空串
func KRW(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	digits := 2
	switch {
	case v >= 100:
		digits = 0
	case v < 0.001:
		digits = 10
	case v < 1:
		digits = 6
	}
	return "₩" + groupFixed(v, digits)
}

// Pct 格式化可空百分比（价差）
// nil 返回空串，其余同 PctValue
func Pct(p *float64) string {
	if p == nil {
		return ""
	}
	return PctValue(*p)
}

// PctValue 格式化百分比
// |v| < 0.005 显示 "0.00%"；正数带 "+"；保留 2 位小数
func PctValue(v float64) string {
	if !finite(v) {
		return ""
	}
	if math.Abs(v) < 0.005 {
		return "0.00%"
	}
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + fixed(v, 2) + "%"
}

// DeltaKRW 格式化 24 小时涨跌额
// 始终带符号；位数随绝对值缩小而增加，末尾多余的 0 被去掉
func DeltaKRW(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	abs := math.Abs(v)
	digits := 0
	switch {
	case abs < 0.0001:
		digits = 10
	case abs < 1:
		digits = 7
	case abs < 100:
		digits = 2
	}
	return signOf(v) + trimZeros(groupFixed(abs, digits))
}

// KRWDiff 格式化价差绝对值
// <1 保留 6 位，<100 保留 2 位，其余取整；末尾多余的 0 被去掉
func KRWDiff(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs < 1:
		s = groupFixed(abs, 6)
	case abs < 100:
		s = groupFixed(abs, 2)
	default:
		s = groupInt(math.Floor(abs))
	}
	return signOf(v) + trimZeros(s)
}

// KRWCompact 以 조/억/천만 为单位紧凑显示成交额
// 例如 1조 2500억 -> "1조 2,500억"；不足 1천만 返回空串
func KRWCompact(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	if v >= oneJo {
		jo := math.Floor(v / oneJo)
		eok := math.Floor(math.Mod(v, oneJo) / oneEok)
		if eok > 0 {
			return groupInt(jo) + "조 " + groupInt(eok) + "억"
		}
		return groupInt(jo) + "조"
	}
	if v >= oneEok {
		return groupInt(math.Floor(v/oneEok)) + "억"
	}
	units := math.Floor(v / tenMillion)
	if units <= 0 {
		return ""
	}
	return groupInt(units) + "천만"
}

// McapKRW 格式化本地货币市值
// >=1조 保留 2 位小数；>=1억 以억为单位取整；>=1만 以만为单位；其余以원显示
func McapKRW(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	abs := math.Abs(v)
	switch {
	case abs >= oneJo:
		return fixed(v/oneJo, 2) + "조"
	case abs >= oneEok:
		return groupInt(math.Floor(v/oneEok)) + "억"
	case abs >= oneMan:
		return groupInt(math.Floor(v/oneMan)) + "만"
	default:
		return groupInt(math.Floor(v)) + "원"
	}
}

// McapUSD 格式化参考货币（美元）市值
// $T/$B 保留 2 位，$M 保留 1 位，其余取整并分组
func McapUSD(v float64) string {
	if !finite(v) || v == 0 {
		return ""
	}
	switch {
	case v >= 1e12:
		return "$" + fixed(v/1e12, 2) + "T"
	case v >= 1e9:
		return "$" + fixed(v/1e9, 2) + "B"
	case v >= 1e6:
		return "$" + fixed(v/1e6, 1) + "M"
	default:
		return "$" + groupInt(math.Floor(v))
	}
}

// Tone 数值着色类别
// 非有限值或 |v| < 0.005 为 zero，正数 plus，负数 minus
func Tone(v float64) string {
	if !finite(v) || math.Abs(v) < 0.005 {
		return model.ToneZero
	}
	if v > 0 {
		return model.TonePlus
	}
	return model.ToneMinus
}

// GapTone 价差着色类别：nil 或 >=0 为 plus，否则 minus
func GapTone(p *float64) string {
	if p == nil || *p >= 0 {
		return model.TonePlus
	}
	return model.ToneMinus
}

// TitlePriceKRW 标题栏价格：四舍五入取整并分组，<=0 返回空串
func TitlePriceKRW(v float64) string {
	if !finite(v) || v <= 0 {
		return ""
	}
	return groupInt(math.Round(v))
}

// TitleChangePct 标题栏涨跌幅：正数带 "+"，保留 2 位小数
func TitleChangePct(v float64) string {
	if !finite(v) {
		return ""
	}
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + fixed(v, 2) + "%"
}

// FxKRW 汇率显示，如 "1,380.5원"
func FxKRW(v float64) string {
	if !finite(v) || v <= 0 {
		return ""
	}
	return trimZeros(groupFixed(v, 3)) + "원"
}

// RoundKRW 取整后的本地货币金额，如 "1,402원"
func RoundKRW(v float64) string {
	if !finite(v) || v <= 0 {
		return ""
	}
	return groupInt(math.Round(v)) + "원"
}

// Dominance 占比百分比（不带符号），负数返回空串
func Dominance(v float64) string {
	if !finite(v) || v < 0 {
		return ""
	}
	return fixed(v, 2) + "%"
}

// KRWJoEok 以 조/억 显示大额（总市值、成交额）
func KRWJoEok(v float64) string {
	if !finite(v) || v <= 0 {
		return ""
	}
	abs := math.Floor(v)
	jo := math.Floor(abs / oneJo)
	eok := math.Floor(math.Mod(abs, oneJo) / oneEok)
	if jo > 0 {
		return strconv.FormatFloat(jo, 'f', 0, 64) + "조 " + groupInt(eok) + "억"
	}
	return groupInt(eok) + "억"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func signOf(v float64) string {
	if v > 0 {
		return "+"
	}
	return "-"
}

// fixed 四舍五入到 digits 位小数（不分组）
func fixed(v float64, digits int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(digits))
}

// groupFixed 四舍五入到 digits 位小数，并对整数部分分组
func groupFixed(v float64, digits int) string {
	s := fixed(v, digits)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	out := groupDigits(intPart)
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// groupInt 对整数值分组
func groupInt(v float64) string {
	return groupFixed(v, 0)
}

// groupDigits 对纯数字字符串每 3 位插入逗号
func groupDigits(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/3)
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// trimZeros 去掉小数末尾多余的 0，如 "1.2300" -> "1.23"，"5.00" -> "5"
func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
