package render

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"kimchi-premium-tracker/internal/core/model"
)

func fp(v float64) *float64 { return &v }

func rows() []model.Row {
	return []model.Row{
		{Symbol: "BTC", Name: "비트코인", PriceLocal: 100_000_000, LocalToReferenceLocal: 95_000_000,
			Change24hPct: 1.5, Change24hAbs: 1_500_000, GapPct: fp(5.263), GapAbs: fp(5_000_000),
			VolumeLocal: 3e11, MarketCapLocal: 2.5e15, MarketCapReference: 1.8e12},
		{Symbol: "ETH", Name: "이더리움", PriceLocal: 5_000_000, Change24hPct: -0.7},
		{Symbol: "XRP", Name: "리플", PriceLocal: 800},
	}
}

func TestRender_FullRebuild(t *testing.T) {
	r := New(0)
	f := r.Render(rows(), map[string]struct{}{"ETH": {}}, Context{})

	if f.Mode != model.ModeFull || f.Seq != 1 || len(f.Ops) != 1 {
		t.Fatalf("frame = %+v", f)
	}
	op := f.Ops[0]
	if op.Op != model.OpReplace || len(op.Rows) != 3 || op.Placeholder != "" {
		t.Fatalf("op = %+v", op)
	}

	btc := op.Rows[0]
	want := model.Cells{
		Key: "BTC", Symbol: "BTC", Name: "비트코인",
		Price: "₩100,000,000", PriceReference: "₩95,000,000",
		Change: "+1.50%", ChangeTone: model.TonePlus, ChangeAbs: "+1,500,000",
		Gap: "+5.26%", GapTone: model.TonePlus, GapAbs: "+5,000,000",
		Volume: "3,000억", MarketCap: "2500.00조", MarketCapUSD: "$1.80T",
	}
	if btc != want {
		t.Errorf("BTC cells = %+v\nwant %+v", btc, want)
	}

	eth := op.Rows[1]
	if !eth.Favorite || eth.ChangeTone != model.ToneMinus || eth.Gap != "" || eth.GapTone != model.TonePlus {
		t.Errorf("ETH cells = %+v", eth)
	}
}

func TestRender_Placeholders(t *testing.T) {
	tests := []struct {
		ctx  Context
		want string
	}{
		{Context{FavoritesOnly: true, Query: "x"}, PlaceholderNoFavorites},
		{Context{Query: "zzz"}, PlaceholderNoResults},
		{Context{}, PlaceholderNoData},
	}
	for _, tt := range tests {
		f := New(2).Render(nil, nil, tt.ctx)
		if len(f.Ops) != 1 || f.Ops[0].Placeholder != tt.want || len(f.Ops[0].Rows) != 0 {
			t.Errorf("ctx %+v: ops = %+v, want placeholder %q", tt.ctx, f.Ops, tt.want)
		}
	}
}

func TestRender_PatchWhenDetailOpen(t *testing.T) {
	r := New(2)
	r.Render(rows(), nil, Context{})

	if !r.ToggleDetail("btc") {
		t.Fatal("ToggleDetail 应展开")
	}

	next := rows()
	next[0].PriceLocal = 101_000_000
	next = append(next, model.Row{Symbol: "NEW", PriceLocal: 1})

	f := r.Render(next, nil, Context{})
	if f.Mode != model.ModePatch {
		t.Fatalf("Mode = %s, want patch", f.Mode)
	}
	if len(f.Ops) != 3 {
		t.Fatalf("未挂载的行不应出现, ops = %d", len(f.Ops))
	}
	first := f.Ops[0]
	if first.Op != model.OpUpdate || first.Key != "BTC" || first.Cells == nil {
		t.Fatalf("op = %+v", first)
	}
	if first.Cells.PriceFlash != model.FlashUp || !first.Cells.DetailOpen {
		t.Errorf("BTC cells = %+v", first.Cells)
	}
	if f.Ops[1].Cells.PriceFlash != "" {
		t.Errorf("价格未变不应闪烁: %q", f.Ops[1].Cells.PriceFlash)
	}
}

func TestRender_PatchSkipsInvisibleRows(t *testing.T) {
	r := New(2)
	r.Render(rows(), nil, Context{})
	r.ToggleDetail("ETH")

	// 尚未收到可见性上报时全部更新
	if f := r.Render(rows(), nil, Context{}); len(f.Ops) != 3 {
		t.Fatalf("ops = %d, want 3", len(f.Ops))
	}

	r.SetVisible("btc", true)
	r.SetVisible("ETH", true)
	r.SetVisible("ETH", false)
	f := r.Render(rows(), nil, Context{})
	if len(f.Ops) != 1 || f.Ops[0].Key != "BTC" {
		t.Errorf("只应更新可见行, ops = %+v", f.Ops)
	}

	// 可见集合为空时不做过滤
	r.SetVisible("BTC", false)
	if f := r.Render(rows(), nil, Context{}); len(f.Ops) != 3 {
		t.Errorf("可见集合为空时 ops = %d, want 3", len(f.Ops))
	}

	// 关闭面板后整表重建并重置可见性
	r.CloseDetails()
	f = r.Render(rows(), nil, Context{})
	if f.Mode != model.ModeFull {
		t.Errorf("Mode = %s, want full", f.Mode)
	}
	r.SetVisible("BTC", true)
	r.ToggleDetail("BTC")
	r.ResetVisibility()
	if f := r.Render(rows(), nil, Context{}); len(f.Ops) != 3 {
		t.Errorf("ResetVisibility 后 ops = %d, want 3", len(f.Ops))
	}
}

func TestToggleDetail_EvictsOldest(t *testing.T) {
	r := New(2)
	r.ToggleDetail("A")
	r.ToggleDetail("B")
	r.ToggleDetail("C")

	got := r.OpenDetails()
	if len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("OpenDetails = %v, want [B C]", got)
	}
	if r.ToggleDetail("B") {
		t.Error("再次切换应关闭")
	}
	if r.IsOpen("B") || !r.IsOpen("c") {
		t.Errorf("OpenDetails = %v", r.OpenDetails())
	}
	if r.ToggleDetail("  ") {
		t.Error("空键不应展开")
	}
}

// **Feature: kimchi-premium-tracker, Property 10: Detail Panel Cap**
// **Validates: Requirements 12.1**

func TestToggleDetail_CapProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("任意切换序列后展开面板数不超过上限且无重复", prop.ForAll(
		func(keys []int) bool {
			r := New(2)
			for _, k := range keys {
				r.ToggleDetail(string(rune('A' + k)))
			}
			open := r.OpenDetails()
			if len(open) > 2 {
				return false
			}
			return len(open) < 2 || open[0] != open[1]
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.Property("没有面板时总是整表重建，有面板时总是补丁", prop.ForAll(
		func(toggles []int) bool {
			r := New(2)
			for _, k := range toggles {
				r.ToggleDetail(string(rune('A' + k)))
				f := r.Render(rows(), nil, Context{})
				if (len(r.OpenDetails()) == 0) != (f.Mode == model.ModeFull) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestSnapshot_DoesNotTouchState(t *testing.T) {
	r := New(2)
	r.Render(rows(), nil, Context{})
	r.ToggleDetail("BTC")
	r.SetVisible("BTC", true)

	snap := r.Snapshot(rows(), nil, Context{})
	if snap.Mode != model.ModeFull || snap.Seq != 1 || len(snap.Ops[0].Rows) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Ops[0].Rows[0].DetailOpen {
		t.Error("快照应标记已展开的面板")
	}

	// 快照不影响补丁模式与可见性过滤
	next := rows()
	next[0].PriceLocal = 90_000_000
	f := r.Render(next, nil, Context{})
	if f.Mode != model.ModePatch || len(f.Ops) != 1 || f.Ops[0].Cells.PriceFlash != model.FlashDown {
		t.Errorf("frame = %+v", f)
	}

	if empty := r.Snapshot(nil, nil, Context{Query: "q"}); empty.Ops[0].Placeholder != PlaceholderNoResults {
		t.Errorf("空快照占位 = %q", empty.Ops[0].Placeholder)
	}
}
