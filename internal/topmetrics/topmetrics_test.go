package topmetrics

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/cache"
	"kimchi-premium-tracker/internal/httpx"
	"kimchi-premium-tracker/internal/storage"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newProvider(srv *httptest.Server, store storage.Store) *Provider {
	cfg := Config{
		FxSources: []FxSource{
			{Name: "proxy-google", URL: srv.URL + "/fx/google", Path: []string{"rate"}},
			{Name: "er-api", URL: srv.URL + "/v6/latest/USD", Path: []string{"rates", "KRW"}},
			{Name: "frankfurter", URL: srv.URL + "/latest", Path: []string{"rates", "KRW"}},
		},
		UpbitUSDTURL:     srv.URL + "/upbit",
		BithumbTickerURL: srv.URL + "/bithumb/public/ticker/ALL_KRW",
		GlobalStatsURL:   srv.URL + "/global-stats",
		Timeout:          time.Second,
	}
	client := httpx.New(httpx.Config{Timeout: time.Second, Retries: 0}, zap.NewNop())
	c := cache.NewTTL[Snapshot](cache.Options{Name: "topmetrics", TTL: time.Minute, Persist: store != nil, Store: store})
	return New(cfg, client, c, func() int64 { return 1_700_000_000_000 }, zap.NewNop())
}

func TestProvider_FxFallbackOrder(t *testing.T) {
	srv := newServer(t, map[string]string{
		// 超出有效区间，跳过
		"/fx/google":     `{"rate":"13.8"}`,
		"/v6/latest/USD": `{"result":"success","rates":{"KRW":1380.5}}`,
		"/latest":        `{"rates":{"KRW":1390}}`,
		"/upbit":         `{"price":"1,402"}`,
		"/global-stats":  `{"btcDominance":54.3,"totalMcapUsd":2.5e12,"spotVolUsd":"1e11","derivVolUsd":0}`,
	})
	defer srv.Close()

	s := newProvider(srv, nil).Fetch(context.Background())
	if s.FxKRW != 1380.5 || s.FxSource != "er-api" {
		t.Errorf("fx = %v (%s), want 1380.5 (er-api)", s.FxKRW, s.FxSource)
	}
	if s.UsdtKRW != 1402 {
		t.Errorf("usdt = %v, want 1402", s.UsdtKRW)
	}
	if s.BtcDominance != 54.3 {
		t.Errorf("dominance = %v", s.BtcDominance)
	}
	if math.Abs(s.TotalMcapKRW-2.5e12*1380.5) > 1 {
		t.Errorf("TotalMcapKRW = %v", s.TotalMcapKRW)
	}
	if s.DerivVolKRW != 0 {
		t.Errorf("DerivVolKRW = %v, want 0", s.DerivVolKRW)
	}
	if s.Rate() != 1380.5 {
		t.Errorf("Rate = %v", s.Rate())
	}
}

func TestProvider_UsdtFallbackAndRate(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/upbit":                         `{"trade_price":99999}`,
		"/bithumb/public/ticker/ALL_KRW": `{"status":"0000","data":{"USDT":{"closing_price":"1399"}}}`,
	})
	defer srv.Close()

	s := newProvider(srv, nil).Fetch(context.Background())
	if s.FxKRW != 0 || s.FxSource != "none" {
		t.Errorf("fx = %v (%s), want 0 (none)", s.FxKRW, s.FxSource)
	}
	if s.UsdtKRW != 1399 {
		t.Errorf("usdt = %v, want 1399", s.UsdtKRW)
	}
	if s.Rate() != 1399 {
		t.Errorf("汇率不可用时使用 USDT 价格, Rate = %v", s.Rate())
	}
}

func TestProvider_AllUnavailable(t *testing.T) {
	srv := newServer(t, map[string]string{})
	defer srv.Close()

	s := newProvider(srv, storage.NewMemoryStore()).Fetch(context.Background())
	if s != (Snapshot{}) {
		t.Errorf("全部失败应返回零值, got %+v", s)
	}
	if s.Rate() != 0 {
		t.Errorf("Rate = %v", s.Rate())
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		in   any
		ok   bool
		want string
	}{
		{1380.5, true, "1380.5"},
		{"1,380.50원", true, "1380.5"},
		{"", false, "0"},
		{0.0, false, "0"},
		{nil, false, "0"},
		{true, false, "0"},
	}
	for _, tt := range tests {
		got, ok := toDecimal(tt.in)
		if ok != tt.ok || got.String() != tt.want {
			t.Errorf("toDecimal(%v) = %s, %v, want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
