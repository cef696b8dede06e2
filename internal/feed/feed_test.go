package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/server"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantSeq uint64
		wantErr error
		errMsg  string
	}{
		{name: "帧", data: `{"type":"frame","frame":{"seq":3,"mode":"full","exchange":"upbit_krw","ops":[]}}`, wantSeq: 3},
		{name: "错误", data: `{"type":"error","error":"未知的命令"}`, errMsg: "未知的命令"},
		{name: "缺少帧", data: `{"type":"frame"}`, wantErr: ErrMissingFrame},
		{name: "未知类型", data: `{"type":"hello"}`, wantErr: ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse 失败: %v", err)
			}
			if tt.errMsg != "" {
				if msg.Frame != nil || msg.Error != tt.errMsg {
					t.Errorf("msg = %+v", msg)
				}
				return
			}
			if msg.Frame == nil || msg.Frame.Seq != tt.wantSeq {
				t.Errorf("msg = %+v", msg)
			}
		})
	}

	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("非法 JSON 应返回错误")
	}
}

func TestTable_Apply(t *testing.T) {
	tbl := NewTable()

	n := tbl.Apply(model.Frame{Seq: 1, Mode: model.ModeFull, Exchange: model.ExchangeUpbit, Title: "BTC",
		Ops: []model.PatchOp{{Op: model.OpReplace, Rows: []model.Cells{
			{Key: "BTC", Price: "100"},
			{Key: "ETH", Price: "10"},
		}}}})
	if n != 2 || tbl.Seq() != 1 || tbl.Exchange() != model.ExchangeUpbit || tbl.Title() != "BTC" {
		t.Fatalf("replace 后: n=%d seq=%d ex=%s", n, tbl.Seq(), tbl.Exchange())
	}

	n = tbl.Apply(model.Frame{Seq: 2, Mode: model.ModePatch, Exchange: model.ExchangeUpbit,
		Ops: []model.PatchOp{
			{Op: model.OpUpdate, Key: "ETH", Cells: &model.Cells{Key: "ETH", Price: "11"}},
			{Op: model.OpUpdate, Key: "XRP", Cells: &model.Cells{Key: "XRP", Price: "1"}},
		}})
	if n != 1 {
		t.Errorf("update 行数 = %d, want 1", n)
	}
	if row, ok := tbl.Row("ETH"); !ok || row.Price != "11" {
		t.Errorf("ETH = %+v", row)
	}
	if _, ok := tbl.Row("XRP"); ok {
		t.Error("未知行键不应被插入")
	}
	if rows := tbl.Rows(); len(rows) != 2 || rows[0].Key != "BTC" {
		t.Errorf("rows = %+v", rows)
	}

	tbl.Apply(model.Frame{Seq: 3, Mode: model.ModeFull,
		Ops: []model.PatchOp{{Op: model.OpReplace, Placeholder: "데이터 없음"}}})
	if len(tbl.Rows()) != 0 || tbl.Placeholder() != "데이터 없음" {
		t.Errorf("空表: rows=%d placeholder=%q", len(tbl.Rows()), tbl.Placeholder())
	}
	if _, ok := tbl.Row("BTC"); ok {
		t.Error("replace 后旧行键应失效")
	}
}

// **Feature: kimchi-premium-tracker, Property 21: Mirror Patch Stability**
// **Validates: Requirements 14.2**

func TestTable_PatchProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("补丁不改变行数与顺序，只覆盖已存在的行", prop.ForAll(
		func(n int, patches []int) bool {
			tbl := NewTable()
			base := make([]model.Cells, n)
			for i := range base {
				base[i] = model.Cells{Key: fmt.Sprintf("K%d", i), Price: "0"}
			}
			tbl.Apply(model.Frame{Seq: 1, Ops: []model.PatchOp{{Op: model.OpReplace, Rows: base}}})

			ops := make([]model.PatchOp, 0, len(patches))
			for j, k := range patches {
				key := fmt.Sprintf("K%d", k)
				ops = append(ops, model.PatchOp{Op: model.OpUpdate, Key: key,
					Cells: &model.Cells{Key: key, Price: fmt.Sprint(j + 1)}})
			}
			tbl.Apply(model.Frame{Seq: 2, Mode: model.ModePatch, Ops: ops})

			got := tbl.Rows()
			if len(got) != n {
				return false
			}
			for i, r := range got {
				if r.Key != base[i].Key {
					return false
				}
			}
			return tbl.Seq() == 2
		},
		gen.IntRange(0, 20),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}

// testServer 每个连接先发送 frames，然后把收到的命令写入 cmds
type testServer struct {
	frames [][]byte
	cmds   chan app.Command
	conns  atomic.Int32
	// dropFirst 首个连接发送完帧后立即断开
	dropFirst bool
}

func (s *testServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("升级失败: %v", err)
			return
		}
		defer conn.Close()
		n := s.conns.Add(1)
		for _, f := range s.frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		if s.dropFirst && n == 1 {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd app.Command
			if err := sonnet.Unmarshal(data, &cmd); err == nil {
				s.cmds <- cmd
			}
		}
	})
}

func frameBytes(t *testing.T, f model.Frame) []byte {
	t.Helper()
	data, err := sonnet.Marshal(server.Message{Type: server.TypeFrame, Frame: &f})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func startClient(t *testing.T, srv *httptest.Server) (*Client, context.CancelFunc) {
	t.Helper()
	c := NewClient(Config{
		URL:           strings.Replace(srv.URL, "http://", "ws://", 1),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Connect(ctx); err != nil {
		cancel()
		t.Fatalf("Connect 失败: %v", err)
	}
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return c, cancel
}

func nextFrame(t *testing.T, c *Client) model.Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		if !ok {
			t.Fatal("帧通道已关闭")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("等待帧超时")
	}
	return model.Frame{}
}

func TestClient_FramesAndCommands(t *testing.T) {
	ts := &testServer{cmds: make(chan app.Command, 4)}
	ts.frames = [][]byte{
		frameBytes(t, model.Frame{Seq: 7, Mode: model.ModeFull}),
		[]byte(`garbage`),
		frameBytes(t, model.Frame{Seq: 9, Mode: model.ModePatch}),
		[]byte(`{"type":"error","error":"未知的排序键"}`),
	}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	c, _ := startClient(t, srv)

	if f := nextFrame(t, c); f.Seq != 7 {
		t.Errorf("首帧 seq = %d", f.Seq)
	}
	if f := nextFrame(t, c); f.Seq != 9 {
		t.Errorf("第二帧 seq = %d", f.Seq)
	}
	select {
	case msg := <-c.Errors():
		if msg != "未知的排序键" {
			t.Errorf("错误消息 = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("等待错误消息超时")
	}

	m := c.Metrics()
	if m.ParseErrorCount != 1 || m.SeqGaps != 1 || m.LastSeq != 9 {
		t.Errorf("metrics = %+v", m)
	}

	if err := c.Send(app.Command{Cmd: app.CmdSort, Key: "gapPct"}); err != nil {
		t.Fatalf("Send 失败: %v", err)
	}
	select {
	case cmd := <-ts.cmds:
		if cmd.Cmd != app.CmdSort || cmd.Key != "gapPct" {
			t.Errorf("cmd = %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("命令未送达")
	}
}

func TestClient_Reconnect(t *testing.T) {
	ts := &testServer{cmds: make(chan app.Command, 1), dropFirst: true}
	ts.frames = [][]byte{frameBytes(t, model.Frame{Seq: 1, Mode: model.ModeFull})}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	c, _ := startClient(t, srv)

	nextFrame(t, c)
	// 服务端断开后重连，新连接再次收到完整画面
	nextFrame(t, c)

	if got := ts.conns.Load(); got < 2 {
		t.Errorf("连接次数 = %d, want >= 2", got)
	}
	if m := c.Metrics(); m.ReconnectCount < 1 || m.SeqGaps != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestClient_RunStopsOnCancel(t *testing.T) {
	ts := &testServer{cmds: make(chan app.Command, 1)}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	c, cancel := startClient(t, srv)
	cancel()

	select {
	case _, ok := <-c.Frames():
		if ok {
			t.Error("取消后不应再收到帧")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 Run 未退出")
	}
}
