package metadata

import "strings"

// 本地报价前缀与稳定币前后缀
const (
	localQuotePrefix = "KRW-"
	stablePrefix     = "USDT-"
	stableSuffix     = "-USDT"
)

// aliases 本地交易所与参考交易所代码不一致的资产
// key: 本地代码，value: 参考交易所代码
var aliases = map[string]string{
	"BTT": "BTTC",
}

// Normalize 标准化交易所本地符号为标的资产代码
// 转大写、去空白，并去掉 KRW- 前缀、USDT- 前缀与 -USDT 后缀。
// 重复剥离直到不再变化，因此 Normalize(Normalize(x)) == Normalize(x)。
// 例如: "krw-btc" -> "BTC", " USDT-ETH " -> "ETH", "XRP-USDT" -> "XRP"
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for {
		next := strings.TrimPrefix(s, localQuotePrefix)
		next = strings.TrimPrefix(next, stablePrefix)
		next = strings.TrimSuffix(next, stableSuffix)
		next = strings.TrimSpace(next)
		if next == s {
			return s
		}
		s = next
	}
}

// ToReferenceBase 将已标准化的代码映射为参考交易所代码，默认原样返回
func ToReferenceBase(normalized string) string {
	if alias, ok := aliases[normalized]; ok {
		return alias
	}
	return normalized
}

// CanonicalBase 标准化并应用别名
func CanonicalBase(raw string) string {
	return ToReferenceBase(Normalize(raw))
}
