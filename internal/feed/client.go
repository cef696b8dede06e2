// Package feed 实现看板 WebSocket 推送的订阅客户端。
// 连接地址: ws://<listen>/ws
// 消息格式: {"type":"frame","frame":{...}} 或 {"type":"error","error":"..."}
// 心跳机制: 协议层 ping/pong，断线后指数退避重连
package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/util/backoff"
	"kimchi-premium-tracker/internal/util/timeutil"
)

// Config 客户端配置
type Config struct {
	// URL 推送地址，如 ws://127.0.0.1:8080/ws
	URL string
	// PingInterval 心跳间隔
	PingInterval time.Duration
	// ReadTimeout 读超时，收到任何消息或 pong 后顺延
	ReadTimeout time.Duration
	// HandshakeTimeout 握手超时
	HandshakeTimeout time.Duration
	// ReconnectBase 重连退避基础间隔
	ReconnectBase time.Duration
	// ReconnectMax 重连退避最大间隔
	ReconnectMax time.Duration
	// Buffer 帧通道缓冲
	Buffer int
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
}

// ConnectionMetrics 连接指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// DroppedFrames 帧通道满被丢弃的帧数
	DroppedFrames int64 `json:"dropped_frames"`
	// SeqGaps 补丁帧序号不连续的次数
	SeqGaps int64 `json:"seq_gaps"`
	// FramesPerSec 每秒收到的帧数
	FramesPerSec float64 `json:"frames_per_sec"`
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
	// LastSeq 最后一帧的序号
	LastSeq uint64 `json:"last_seq"`
}

// Client 看板推送订阅客户端
type Client struct {
	cfg    Config
	logger *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	frameCh chan model.Frame
	errCh   chan string

	metrics   ConnectionMetrics
	metricsMu sync.RWMutex

	lastMsgTime int64
	frameCount  int64
	lastSeq     uint64
	backoff     *backoff.Backoff
	closed      int32
}

// NewClient 创建订阅客户端
// 参数 cfg: 客户端配置
// 参数 logger: 日志记录器
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.Named("feed"),
		frameCh: make(chan model.Frame, cfg.Buffer),
		errCh:   make(chan string, 16),
		backoff: backoff.New(cfg.ReconnectBase, cfg.ReconnectMax, 0.2),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消握手
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "kimchi-premium-tracker-watch/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("连接看板推送失败: %w", err)
	}

	readTimeout := c.cfg.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		atomic.StoreInt64(&c.lastMsgTime, timeutil.NowNano())
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.conn = conn
	c.backoff.Reset()
	// 新连接的首帧为完整画面，序号重新开始比较
	atomic.StoreUint64(&c.lastSeq, 0)
	c.logger.Info("看板推送连接成功", zap.String("url", c.cfg.URL))
	return nil
}

// Send 发送一条视图命令
func (c *Client) Send(cmd app.Command) error {
	data, err := sonnet.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("序列化命令失败: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送命令失败: %w", err)
	}
	return nil
}

// Run 启动客户端主循环，直到 ctx 取消或 Close
// 返回前关闭帧通道与错误通道
func (c *Client) Run(ctx context.Context) {
	defer close(c.frameCh)
	defer close(c.errCh)

	// ctx 取消时关闭连接以打断阻塞中的读取
	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	go c.pingLoop(ctx)
	go c.metricsLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.closeConn()
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 || ctx.Err() != nil {
				return
			}
			c.logger.Warn("读取看板推送失败", zap.Error(err))
			c.incrementReconnectCount()
			c.reconnect(ctx)
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		atomic.StoreInt64(&c.lastMsgTime, timeutil.NowNano())

		msg, err := Parse(data)
		if err != nil {
			c.incrementParseErrorCount()
			c.logger.Debug("解析看板消息失败", zap.Error(err))
			continue
		}
		if msg.Frame == nil {
			select {
			case c.errCh <- msg.Error:
			default:
			}
			continue
		}

		c.trackSeq(msg.Frame)
		atomic.AddInt64(&c.frameCount, 1)
		select {
		case c.frameCh <- *msg.Frame:
		default:
			c.metricsMu.Lock()
			c.metrics.DroppedFrames++
			c.metricsMu.Unlock()
			c.logger.Warn("帧通道已满，丢弃帧", zap.Uint64("seq", msg.Frame.Seq))
		}
	}
}

// trackSeq 补丁帧必须紧接上一帧，否则计为一次序号缺口
func (c *Client) trackSeq(f *model.Frame) {
	prev := atomic.SwapUint64(&c.lastSeq, f.Seq)
	if prev != 0 && f.Mode == model.ModePatch && f.Seq != prev+1 {
		c.metricsMu.Lock()
		c.metrics.SeqGaps++
		c.metricsMu.Unlock()
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}
			deadline := time.Now().Add(5 * time.Second)
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
			c.connMu.Unlock()
			if err != nil {
				c.logger.Warn("发送 ping 失败", zap.Error(err))
			}
		}
	}
}

func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			count := atomic.LoadInt64(&c.frameCount)
			fps := float64(count - lastCount)
			lastCount = count

			lastMsg := atomic.LoadInt64(&c.lastMsgTime)
			var ageMs int64
			if lastMsg > 0 {
				ageMs = (timeutil.NowNano() - lastMsg) / 1_000_000
			}

			c.metricsMu.Lock()
			c.metrics.FramesPerSec = fps
			c.metrics.LastMessageAgeMs = ageMs
			c.metricsMu.Unlock()
		}
	}
}

func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()

	delay := c.backoff.Next()
	c.logger.Info("准备重连看板推送", zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Warn("重连看板推送失败", zap.Error(err))
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端，Run 随后退出并关闭通道
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	c.logger.Info("看板推送客户端已关闭")
	return nil
}

// Frames 帧通道，Run 返回后关闭
func (c *Client) Frames() <-chan model.Frame {
	return c.frameCh
}

// Errors 服务端回送的命令错误
func (c *Client) Errors() <-chan string {
	return c.errCh
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	m := c.metrics
	c.metricsMu.RUnlock()
	m.LastSeq = atomic.LoadUint64(&c.lastSeq)
	return m
}

func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}
