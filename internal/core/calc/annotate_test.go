// Package calc 派生字段计算测试
package calc

import (
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"kimchi-premium-tracker/internal/core/model"
)

func refData(prices map[string]float64) model.ReferenceData {
	return model.ReferenceData{Prices: prices}
}

// **Feature: kimchi-premium-tracker, Property 1: Gap Field Consistency**
// **Validates: Requirements 8.1, 8.2, 8.3**

func TestAnnotate_GapInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	p := DefaultParams()

	properties.Property("价差两个字段同时为空或同时非空，且不超过阈值", prop.ForAll(
		func(priceLocal, refPrice, rate float64) bool {
			rows := []model.Row{{Symbol: "BTC", PriceLocal: priceLocal}}
			Annotate(rows, refData(map[string]float64{"BTC": refPrice}), rate, p)
			r := rows[0]

			if (r.GapPct == nil) != (r.GapAbs == nil) {
				return false
			}
			if r.LocalToReferenceLocal <= 0 && r.GapPct != nil {
				return false
			}
			if r.GapPct != nil && math.Abs(*r.GapPct) >= p.GapLimitPct {
				return false
			}
			if r.LocalToReferenceLocal > 0 {
				g := (priceLocal/r.LocalToReferenceLocal - 1) * 100
				if math.Abs(g) >= p.GapLimitPct && r.GapPct != nil {
					return false
				}
			}
			return r.HasReference
		},
		gen.Float64Range(0, 1e9),
		gen.Float64Range(0, 1e5),
		gen.Float64Range(0, 2000),
	))

	properties.Property("相同输入重复计算结果相同", prop.ForAll(
		func(priceLocal, refPrice, rate, vol, capUSD float64) bool {
			ref := model.ReferenceData{
				Prices:     map[string]float64{"ETH": refPrice},
				Volumes:    map[string]float64{"ETH": vol},
				MarketCaps: map[string]float64{"ETH": capUSD},
			}
			rows := []model.Row{{Symbol: "KRW-ETH", PriceLocal: priceLocal}, {Symbol: "USDT", PriceLocal: rate}}
			Annotate(rows, ref, rate, p)
			first := append([]model.Row(nil), rows...)
			snapshot := make([]model.Row, len(rows))
			for i := range first {
				snapshot[i] = first[i]
				if first[i].GapPct != nil {
					g, a := *first[i].GapPct, *first[i].GapAbs
					snapshot[i].GapPct, snapshot[i].GapAbs = &g, &a
				}
			}
			Annotate(rows, ref, rate, p)
			return reflect.DeepEqual(snapshot, rows)
		},
		gen.Float64Range(0, 1e8),
		gen.Float64Range(0, 1e5),
		gen.Float64Range(0, 2000),
		gen.Float64Range(0, 1e12),
		gen.Float64Range(0, 1e12),
	))

	properties.TestingRun(t)
}

func TestAnnotate_Boundary(t *testing.T) {
	tests := []struct {
		name       string
		priceLocal float64
		wantGap    bool
	}{
		{"恰好 +50% 置空", 150, false},
		{"+49.999% 保留", 149.999, true},
		{"恰好 -50% 置空", 50, false},
		{"-49.999% 保留", 50.001, true},
		{"0% 保留", 100, true},
	}
	for _, tt := range tests {
		rows := []model.Row{{Symbol: "ABC", PriceLocal: tt.priceLocal}}
		Annotate(rows, refData(map[string]float64{"ABC": 100}), 1, DefaultParams())
		if got := rows[0].GapPct != nil; got != tt.wantGap {
			t.Errorf("%s: gap 非空 = %v, want %v", tt.name, got, tt.wantGap)
		}
	}
}

func TestAnnotate_Scenarios(t *testing.T) {
	p := DefaultParams()

	t.Run("A 正常价差", func(t *testing.T) {
		rows := []model.Row{{Symbol: "BTC", PriceLocal: 100_000_000}}
		Annotate(rows, refData(map[string]float64{"BTC": 95_000}), 1000, p)
		r := rows[0]
		if r.LocalToReferenceLocal != 95_000_000 {
			t.Fatalf("LocalToReferenceLocal = %v", r.LocalToReferenceLocal)
		}
		if r.GapPct == nil || math.Abs(*r.GapPct-5.263157894736836) > 1e-6 {
			t.Errorf("GapPct = %v, want ≈5.26", r.GapPct)
		}
		if r.GapAbs == nil || *r.GapAbs != 5_000_000 {
			t.Errorf("GapAbs = %v, want 5000000", r.GapAbs)
		}
	})

	t.Run("B 超过阈值", func(t *testing.T) {
		rows := []model.Row{{Symbol: "XYZ", PriceLocal: 100}}
		Annotate(rows, refData(map[string]float64{"XYZ": 0.04}), 1000, p)
		if rows[0].GapPct != nil || rows[0].GapAbs != nil {
			t.Errorf("+150%% 价差应置空, got %v", *rows[0].GapPct)
		}
		if !rows[0].HasReference {
			t.Error("参考价存在时 HasReference 为 true")
		}
	})

	t.Run("C 参考价缺失", func(t *testing.T) {
		rows := []model.Row{{Symbol: "ETH", Name: "이더리움", PriceLocal: 5_000_000, VolumeLocal: 1e10}}
		Annotate(rows, refData(map[string]float64{}), 1380, p)
		r := rows[0]
		if r.HasReference || r.PriceReference != 0 || r.GapPct != nil || r.GapAbs != nil {
			t.Errorf("row = %+v", r)
		}
		if r.PriceLocal != 5_000_000 || r.Name != "이더리움" || r.VolumeLocal != 1e10 {
			t.Errorf("本地字段应保留: %+v", r)
		}
	})

	t.Run("D 汇率未知", func(t *testing.T) {
		rows := []model.Row{{Symbol: "BTC", PriceLocal: 1e8}}
		ref := model.ReferenceData{
			Prices:     map[string]float64{"BTC": 65_000},
			Volumes:    map[string]float64{"BTC": 1e9},
			MarketCaps: map[string]float64{"BTC": 1.3e12},
		}
		Annotate(rows, ref, 0, p)
		r := rows[0]
		if r.LocalToReferenceLocal != 0 || r.MarketCapLocal != 0 || r.VolumeReferenceLocal != 0 {
			t.Errorf("汇率为 0 时参考相关字段为 0: %+v", r)
		}
		if r.GapPct != nil || r.GapAbs != nil {
			t.Error("汇率为 0 时价差为空")
		}
		if !r.HasReference || r.PriceReference != 65_000 {
			t.Errorf("参考价本身仍可用: %+v", r)
		}
	})
}

func TestAnnotate_StablecoinAliasAndCaps(t *testing.T) {
	rows := []model.Row{
		{Symbol: "USDT", PriceLocal: 1400},
		{Symbol: "BTT", PriceLocal: 0.0012},
		{Symbol: "ETH", PriceLocal: 5_000_000},
	}
	ref := model.ReferenceData{
		Prices:     map[string]float64{"BTTC": 0.00000085, "ETH": 3500},
		Volumes:    map[string]float64{"USDT": 5e9, "ETH": 2e9},
		MarketCaps: map[string]float64{"BTTC": 8e8, "ETH": 4.2e11},
	}
	Annotate(rows, ref, 1380, DefaultParams())

	usdt := rows[0]
	if !usdt.HasReference || usdt.PriceReference != 1 || usdt.LocalToReferenceLocal != 1380 {
		t.Errorf("稳定币参考价恒为 1: %+v", usdt)
	}
	if usdt.GapPct == nil || math.Abs(*usdt.GapPct-(1400.0/1380-1)*100) > 1e-9 {
		t.Errorf("稳定币价差: %v", usdt.GapPct)
	}
	if usdt.VolumeReferenceLocal != 5e9*1380 {
		t.Errorf("VolumeReferenceLocal = %v", usdt.VolumeReferenceLocal)
	}

	btt := rows[1]
	if !btt.HasReference || btt.PriceReference != 0.00000085 {
		t.Errorf("别名 BTT->BTTC 应命中参考价: %+v", btt)
	}
	if btt.MarketCapReference != 8e8 || btt.MarketCapLocal != 8e8*1380 {
		t.Errorf("市值按参考代码回退: %+v", btt)
	}

	if rows[2].MarketCapLocal != 4.2e11*1380 {
		t.Errorf("ETH 市值 = %v", rows[2].MarketCapLocal)
	}
}

func TestAnnotate_ClearsStaleDerivedFields(t *testing.T) {
	g, a := 3.0, 100.0
	rows := []model.Row{{Symbol: "OLD", PriceLocal: 10, GapPct: &g, GapAbs: &a, HasReference: true, PriceReference: 9}}
	Annotate(rows, refData(nil), 1380, DefaultParams())
	if rows[0].GapPct != nil || rows[0].HasReference || rows[0].PriceReference != 0 {
		t.Errorf("旧派生字段应被清除: %+v", rows[0])
	}
}
