package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"kimchi-premium-tracker/internal/core/model"
)

// blockingAdapter 第一次调用阻塞到上下文取消，之后立即返回
type blockingAdapter struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
}

func (b *blockingAdapter) Name() string { return "test" }

func (b *blockingAdapter) FetchRows(ctx context.Context, warm bool) []model.Row {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n == 1 {
		close(b.started)
		<-ctx.Done()
		return []model.Row{{Symbol: "OLD"}}
	}
	return []model.Row{{Symbol: "NEW"}}
}

func TestGuard_NewCallCancelsPrevious(t *testing.T) {
	a := &blockingAdapter{started: make(chan struct{})}
	g := NewGuard(a)

	var old []model.Row
	done := make(chan struct{})
	go func() {
		old = g.FetchRows(context.Background(), false)
		close(done)
	}()

	<-a.started
	fresh := g.FetchRows(context.Background(), false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("旧调用未被取消")
	}

	if old != nil {
		t.Errorf("被取代的调用结果应丢弃, got %v", old)
	}
	if len(fresh) != 1 || fresh[0].Symbol != "NEW" {
		t.Errorf("fresh = %v", fresh)
	}
}

type staticAdapter struct{}

func (staticAdapter) Name() string { return "static" }
func (staticAdapter) FetchRows(ctx context.Context, warm bool) []model.Row {
	return []model.Row{{Symbol: "BTC"}}
}

func TestGuard_ParentCanceled(t *testing.T) {
	g := NewGuard(staticAdapter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if rows := g.FetchRows(ctx, true); rows != nil {
		t.Errorf("父上下文已取消应返回 nil, got %v", rows)
	}
	if rows := g.FetchRows(context.Background(), true); len(rows) != 1 {
		t.Errorf("rows = %v", rows)
	}
	if g.Name() != "static" {
		t.Errorf("Name = %s", g.Name())
	}
}
