// Package format 数值格式化测试
package format

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestKRW(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, ""},
		{143250000, "₩143,250,000"},
		{100, "₩100"},
		{1.5, "₩1.50"},
		{0.5, "₩0.500000"},
		{0.0005, "₩0.0005000000"},
	}
	for _, tt := range tests {
		if got := KRW(tt.in); got != tt.want {
			t.Errorf("KRW(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPct(t *testing.T) {
	v := 5.263157
	neg := -1.234
	tiny := 0.004
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, ""},
		{&v, "+5.26%"},
		{&neg, "-1.23%"},
		{&tiny, "0.00%"},
	}
	for _, tt := range tests {
		if got := Pct(tt.in); got != tt.want {
			t.Errorf("Pct(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeltaAndDiff(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) string
		in   float64
		want string
	}{
		{"DeltaKRW 大额", DeltaKRW, 1500, "+1,500"},
		{"DeltaKRW 小于 1", DeltaKRW, -0.5, "-0.5"},
		{"DeltaKRW 两位小数去零", DeltaKRW, 12.3, "+12.3"},
		{"DeltaKRW 零", DeltaKRW, 0, ""},
		{"KRWDiff 大额取整", KRWDiff, 5000000, "+5,000,000"},
		{"KRWDiff 小于 1", KRWDiff, -0.25, "-0.25"},
		{"KRWDiff 小于 100", KRWDiff, 12.5, "+12.5"},
		{"KRWDiff 整数", KRWDiff, 40, "+40"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCompactAndMcap(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) string
		in   float64
		want string
	}{
		{"조 억", KRWCompact, 1.25e12, "1조 2,500억"},
		{"整 조", KRWCompact, 2e12, "2조"},
		{"억", KRWCompact, 3.5e8, "3억"},
		{"천만", KRWCompact, 5e7, "5천만"},
		{"不足천만", KRWCompact, 5e6, ""},
		{"市值 조", McapKRW, 2.5e12, "2.50조"},
		{"市值 억", McapKRW, 3.2e9, "32억"},
		{"市值 만", McapKRW, 5e4, "5만"},
		{"市值 원", McapKRW, 500, "500원"},
		{"美元 T", McapUSD, 1.5e12, "$1.50T"},
		{"美元 B", McapUSD, 2.5e9, "$2.50B"},
		{"美元 M", McapUSD, 12.3e6, "$12.3M"},
		{"美元 小额", McapUSD, 1234.7, "$1,234"},
		{"总额 조 억", KRWJoEok, 1.5e12, "1조 5,000억"},
		{"总额 억", KRWJoEok, 3e11, "3,000억"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTitleAndMetrics(t *testing.T) {
	if got := TitlePriceKRW(143250000.4); got != "143,250,000" {
		t.Errorf("TitlePriceKRW = %q, want 143,250,000", got)
	}
	if got := TitlePriceKRW(0); got != "" {
		t.Errorf("TitlePriceKRW(0) = %q, want empty", got)
	}
	if got := TitleChangePct(1.234); got != "+1.23%" {
		t.Errorf("TitleChangePct = %q, want +1.23%%", got)
	}
	if got := FxKRW(1380.5); got != "1,380.5원" {
		t.Errorf("FxKRW = %q, want 1,380.5원", got)
	}
	if got := RoundKRW(1401.6); got != "1,402원" {
		t.Errorf("RoundKRW = %q, want 1,402원", got)
	}
	if got := Dominance(54.321); got != "54.32%" {
		t.Errorf("Dominance = %q, want 54.32%%", got)
	}
}

func TestTone(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.004, "zero"},
		{-0.004, "zero"},
		{1, "plus"},
		{-1, "minus"},
	}
	for _, tt := range tests {
		if got := Tone(tt.in); got != tt.want {
			t.Errorf("Tone(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if GapTone(nil) != "plus" {
		t.Error("GapTone(nil) 应为 plus")
	}
}

// **Feature: kimchi-premium-tracker, Property 13: Formatter Sign Consistency**
// **Validates: Requirements 1.1**

func TestFormat_SignProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("正百分比带加号，负百分比带减号", prop.ForAll(
		func(v float64) bool {
			s := PctValue(v)
			if v >= 0.005 {
				return strings.HasPrefix(s, "+") && strings.HasSuffix(s, "%")
			}
			if v <= -0.005 {
				return strings.HasPrefix(s, "-") && strings.HasSuffix(s, "%")
			}
			return s == "0.00%"
		},
		gen.Float64Range(-1000, 1000),
	))

	properties.Property("涨跌额符号与数值一致", prop.ForAll(
		func(v float64) bool {
			s := DeltaKRW(v)
			if v == 0 {
				return s == ""
			}
			if v > 0 {
				return strings.HasPrefix(s, "+")
			}
			return strings.HasPrefix(s, "-")
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("不足 1천만 的成交额不显示", prop.ForAll(
		func(v float64) bool {
			return KRWCompact(v) == ""
		},
		gen.Float64Range(-1e12, 9_999_999),
	))

	properties.TestingRun(t)
}
