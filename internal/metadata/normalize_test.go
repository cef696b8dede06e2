// Package metadata 元数据模块测试
package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/httpx"
)

// **Feature: kimchi-premium-tracker, Property 2: Symbol Normalization Idempotence**
// **Validates: Requirements 4.1**

// TestNormalize_Idempotent 测试标准化幂等性
// 属性: 对已标准化的结果再次标准化应该得到相同结果
func TestNormalize_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("任意字符串标准化幂等", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			return Normalize(once) == once
		},
		gen.AnyString(),
	))

	// 由前后缀组合构造的输入也必须收敛
	affixes := []string{"", "KRW-", "krw-", "USDT-", " ", "KRW-KRW-"}
	suffixes := []string{"", "-USDT", "-usdt", " ", "-USDT-USDT"}
	coins := []string{"BTC", "eth", "Sol", "DOGE", "KRW", "USDT", ""}

	properties.Property("前后缀组合标准化幂等且去掉报价标记", prop.ForAll(
		func(pi, ci, si int) bool {
			raw := affixes[pi] + coins[ci] + suffixes[si]
			once := Normalize(raw)
			if Normalize(once) != once {
				return false
			}
			return !strings.HasPrefix(once, "KRW-") && !strings.HasSuffix(once, "-USDT")
		},
		gen.IntRange(0, len(affixes)-1),
		gen.IntRange(0, len(coins)-1),
		gen.IntRange(0, len(suffixes)-1),
	))

	properties.TestingRun(t)
}

// TestNormalize_Examples 测试具体输入
func TestNormalize_Examples(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KRW-BTC", "BTC"},
		{"krw-eth", "ETH"},
		{" USDT-XRP ", "XRP"},
		{"SOL-USDT", "SOL"},
		{"KRW-KRW-BTC", "BTC"},
		{"USDT", "USDT"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestCanonicalBase_Alias 测试别名映射
func TestCanonicalBase_Alias(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KRW-BTT", "BTTC"},
		{"btt", "BTTC"},
		{"BTTC", "BTTC"},
		{"KRW-BTC", "BTC"},
	}
	for _, tt := range tests {
		if got := CanonicalBase(tt.in); got != tt.want {
			t.Errorf("CanonicalBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestActiveBases 测试可交易标的集合提取
func TestActiveBases(t *testing.T) {
	symbols := []ExchangeSymbol{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "ETHUSDT", BaseAsset: "eth", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "LUNAUSDT", BaseAsset: "LUNA", QuoteAsset: "USDT", Status: "BREAK"},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Status: "TRADING"},
		{Symbol: "XUSDT", BaseAsset: " ", QuoteAsset: "USDT", Status: "TRADING"},
	}
	got := ActiveBases(symbols, "USDT")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(got), got)
	}
	for _, b := range []string{"BTC", "ETH"} {
		if _, ok := got[b]; !ok {
			t.Errorf("缺少 %s", b)
		}
	}
}

// TestHTTPFetcher_FetchExchangeInfo 测试通过 HTTP 获取上架信息
func TestHTTPFetcher_FetchExchangeInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("empty") != "" {
			_, _ = w.Write([]byte(`{"symbols":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"timezone":"UTC","symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}]}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(httpx.New(httpx.Config{}, zap.NewNop()))

	syms, err := f.FetchExchangeInfo(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchExchangeInfo 失败: %v", err)
	}
	if len(syms) != 1 || syms[0].BaseAsset != "BTC" {
		t.Errorf("symbols = %+v", syms)
	}

	if _, err := f.FetchExchangeInfo(context.Background(), srv.URL+"?empty=1"); err == nil {
		t.Error("空上架信息应返回错误")
	}
}
