// Package server 通过 WebSocket 把渲染帧推送给浏览器等展示层，并接收视图命令。
//
// 每个连接先收到一帧完整画面，之后按序收到全部增量帧；发送缓冲区满的慢连接被断开，
// 由客户端重连后重新获取完整画面。
//
// 可见性命令按连接记录：只有全部连接都不可见时才暂停刷新，连接断开后重新判断。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/core/model"
)

// 消息类型
const (
	TypeFrame = "frame"
	TypeError = "error"
)

// Message 服务端发送的消息
type Message struct {
	// Type 消息类型: frame, error
	Type string `json:"type"`
	// Frame 渲染帧（仅 frame）
	Frame *model.Frame `json:"frame,omitempty"`
	// Error 命令错误（仅 error）
	Error string `json:"error,omitempty"`
}

// Target 命令执行与当前画面的提供者，通常为 *app.App
type Target interface {
	Dispatch(cmd app.Command) error
	CurrentFrame() model.Frame
}

// Config 服务配置
type Config struct {
	// Listen 监听地址
	Listen string
	// PingInterval 心跳间隔，读超时为其 2 倍
	PingInterval time.Duration
	// WriteTimeout 单次写超时
	WriteTimeout time.Duration
	// SendBuffer 每个连接的发送缓冲
	SendBuffer int
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// ConnectionMetrics 连接统计
type ConnectionMetrics struct {
	// Clients 当前连接数
	Clients int `json:"clients"`
	// Accepted 累计接入数
	Accepted int64 `json:"accepted"`
	// SlowDropped 因发送缓冲区满被断开的连接数
	SlowDropped int64 `json:"slow_dropped"`
	// Commands 累计收到的命令数
	Commands int64 `json:"commands"`
	// BadCommands 解析或执行失败的命令数
	BadCommands int64 `json:"bad_commands"`
}

type outbound struct {
	seq  uint64
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan outbound
	done chan struct{}
	once sync.Once
	// hidden 该连接上报为不可见，由 Hub.mu 保护
	hidden bool
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub WebSocket 广播中心，实现 app.Presenter
type Hub struct {
	cfg      Config
	target   Target
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	// visMu 串行化可见性判断与下发
	visMu sync.Mutex
	// paused 已向 target 下发不可见
	paused bool

	srv *http.Server

	accepted    atomic.Int64
	slowDropped atomic.Int64
	commands    atomic.Int64
	badCommands atomic.Int64
}

// New 创建广播中心
// 参数 cfg: 服务配置
// 参数 target: 命令执行者
// 参数 logger: 日志记录器
func New(cfg Config, target Target, logger *zap.Logger) *Hub {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		target: target,
		logger: logger.Named("hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler 返回 HTTP 路由: /ws 与 /healthz
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe 在配置的地址上监听并在后台服务
// 返回: 实际监听地址
func (h *Hub) ListenAndServe() (net.Addr, error) {
	ln, err := net.Listen("tcp", h.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", h.cfg.Listen, err)
	}
	h.srv = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP 服务退出", zap.Error(err))
		}
	}()
	h.logger.Info("WebSocket 服务已启动", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Present 广播一帧（实现 app.Presenter）
// 不阻塞：发送缓冲区满的连接被断开
func (h *Hub) Present(frame model.Frame) {
	data, err := sonnet.Marshal(Message{Type: TypeFrame, Frame: &frame})
	if err != nil {
		h.logger.Warn("序列化帧失败", zap.Error(err))
		return
	}
	msg := outbound{seq: frame.Seq, data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.close()
			h.slowDropped.Add(1)
			h.logger.Warn("连接发送缓冲区已满，断开", zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// Metrics 连接统计快照
func (h *Hub) Metrics() ConnectionMetrics {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	return ConnectionMetrics{
		Clients:     n,
		Accepted:    h.accepted.Load(),
		SlowDropped: h.slowDropped.Load(),
		Commands:    h.commands.Load(),
		BadCommands: h.badCommands.Load(),
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket 升级失败", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		send: make(chan outbound, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	// 先登记再取完整画面：登记之后产生的帧都会进入发送队列，
	// 写循环跳过序号不大于首帧的部分
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()
	h.accepted.Add(1)

	first := h.target.CurrentFrame()
	data, err := sonnet.Marshal(Message{Type: TypeFrame, Frame: &first})
	if err != nil {
		h.logger.Warn("序列化首帧失败", zap.Error(err))
		h.remove(c)
		h.wg.Add(-2)
		return
	}

	h.logger.Info("WebSocket 客户端已连接", zap.String("remote", conn.RemoteAddr().String()))
	go h.writeLoop(c, outbound{seq: first.Seq, data: data})
	go h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	h.syncVisibility()
}

// setHidden 记录连接的可见性并重新判断
func (h *Hub) setHidden(c *client, hidden bool) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		c.hidden = hidden
	}
	h.mu.Unlock()
	h.syncVisibility()
}

// syncVisibility 全部连接都不可见时暂停刷新，否则恢复；没有连接时视为可见
// 只在状态变化时下发命令
func (h *Hub) syncVisibility() {
	h.visMu.Lock()
	defer h.visMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	hidden := len(h.clients) > 0
	for c := range h.clients {
		if !c.hidden {
			hidden = false
			break
		}
	}
	h.mu.Unlock()

	if hidden == h.paused {
		return
	}
	h.paused = hidden
	on := !hidden
	if err := h.target.Dispatch(app.Command{Cmd: app.CmdVisible, On: &on}); err != nil {
		h.logger.Warn("下发可见性失败", zap.Error(err))
		return
	}
	h.logger.Info("展示层可见性变化", zap.Bool("visible", on))
}

func (h *Hub) writeLoop(c *client, first outbound) {
	defer h.wg.Done()
	defer h.remove(c)

	if err := h.write(c, websocket.TextMessage, first.data); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if msg.seq != 0 && msg.seq <= first.seq {
				continue
			}
			if err := h.write(c, websocket.TextMessage, msg.data); err != nil {
				h.logger.Debug("写入 WebSocket 失败", zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				h.logger.Debug("发送 ping 失败", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(c *client, typ int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return c.conn.WriteMessage(typ, data)
}

func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	readTimeout := 2 * h.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("读取 WebSocket 失败", zap.Error(err))
			}
			h.logger.Info("WebSocket 客户端已断开", zap.String("remote", c.conn.RemoteAddr().String()))
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if typ != websocket.TextMessage {
			continue
		}
		h.handleCommand(c, data)
	}
}

// handleCommand 解析并执行命令，失败时回送错误消息
func (h *Hub) handleCommand(c *client, data []byte) {
	h.commands.Add(1)

	var cmd app.Command
	err := sonnet.Unmarshal(data, &cmd)
	switch {
	case err != nil:
		err = fmt.Errorf("解析命令失败: %w", err)
	case cmd.Cmd == app.CmdVisible:
		// 单个连接的可见性不直接下发
		h.setHidden(c, cmd.On != nil && !*cmd.On)
	default:
		err = h.target.Dispatch(cmd)
	}
	if err == nil {
		return
	}

	h.badCommands.Add(1)
	h.logger.Debug("命令执行失败", zap.ByteString("data", data), zap.Error(err))
	reply, merr := sonnet.Marshal(Message{Type: TypeError, Error: err.Error()})
	if merr != nil {
		return
	}
	select {
	case c.send <- outbound{data: reply}:
	case <-c.done:
	default:
	}
}

// Shutdown 停止接收新连接，关闭现有连接并等待其 goroutine 退出
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	if h.srv != nil {
		err = multierr.Append(err, h.srv.Shutdown(ctx))
	}

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("等待连接关闭超时: %w", ctx.Err()))
	}
	h.logger.Info("WebSocket 服务已关闭")
	return err
}
