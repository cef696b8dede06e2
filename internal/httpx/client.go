// Package httpx 提供所有外部 HTTP 调用共用的重试客户端。
// 每次尝试带独立超时；网络错误、429、5xx、非 JSON 响应按线性退避重试，
// 其余非 2xx 状态立即失败。
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/util/backoff"
)

// 默认参数
const (
	DefaultTimeout        = 8 * time.Second
	DefaultRetries        = 2
	DefaultNetworkBackoff = 200 * time.Millisecond
	DefaultStatusBackoff  = 250 * time.Millisecond
	DefaultUserAgent      = "kimchi-premium-tracker/1.0"

	// maxBodyBytes 单个响应体上限
	maxBodyBytes = 32 << 20
)

// ErrNotJSON 响应 Content-Type 不是 JSON
var ErrNotJSON = errors.New("响应不是 JSON")

// StatusError 非 2xx 的 HTTP 响应
type StatusError struct {
	// Code HTTP 状态码
	Code int
	// URL 请求地址
	URL string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP 状态码错误: %d (%s)", e.Code, e.URL)
}

// Retryable 429 与 5xx 可重试
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Config 客户端配置
type Config struct {
	// Timeout 单次尝试默认超时
	Timeout time.Duration
	// Retries 默认重试次数（总尝试次数 = Retries + 1）
	Retries int
	// NetworkBackoff 网络错误的退避基数
	NetworkBackoff time.Duration
	// StatusBackoff 429/5xx/非 JSON 的退避基数
	StatusBackoff time.Duration
	// UserAgent 请求头
	UserAgent string
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.NetworkBackoff <= 0 {
		c.NetworkBackoff = DefaultNetworkBackoff
	}
	if c.StatusBackoff <= 0 {
		c.StatusBackoff = DefaultStatusBackoff
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Getter 获取 JSON 的最小接口，适配器与提供者依赖该接口以便测试替换
type Getter interface {
	GetJSON(ctx context.Context, url string, out any, opts ...Option) error
}

// Client 重试 HTTP 客户端
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger

	// sleep 退避等待，测试中可替换
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建重试客户端
// 参数 cfg: 客户端配置，零值字段使用默认值
// 参数 logger: 日志记录器
func New(cfg Config, logger *zap.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   &http.Client{},
		cfg:    cfg,
		logger: logger.Named("httpx"),
		sleep:  sleepCtx,
	}
}

// Option 单次调用选项
type Option func(*call)

type call struct {
	timeout time.Duration
	retries int
	label   string
}

// WithTimeout 覆盖单次尝试超时
func WithTimeout(d time.Duration) Option {
	return func(c *call) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries 覆盖重试次数
func WithRetries(n int) Option {
	return func(c *call) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithLabel 设置错误与日志中使用的调用标签
func WithLabel(label string) Option {
	return func(c *call) {
		c.label = label
	}
}

// GetJSON 发送 GET 请求并把 JSON 响应解码到 out
// 参数 ctx: 上下文，取消后立即返回 ctx.Err()
// 参数 url: 请求地址
// 参数 out: 解码目标（指针）
// 返回: 所有尝试失败后的最后一个错误
func (c *Client) GetJSON(ctx context.Context, url string, out any, opts ...Option) error {
	cl := call{timeout: c.cfg.Timeout, retries: c.cfg.Retries, label: url}
	for _, opt := range opts {
		opt(&cl)
	}

	var lastErr error
	for attempt := 0; attempt <= cl.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.attempt(ctx, url, out, cl.timeout)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		var wait time.Duration
		var se *StatusError
		switch {
		case errors.As(err, &se):
			if !se.Retryable() {
				return fmt.Errorf("%s: %w", cl.label, err)
			}
			wait = backoff.Linear(c.cfg.StatusBackoff, attempt+1)
		case errors.Is(err, ErrNotJSON), isDecodeError(err):
			wait = backoff.Linear(c.cfg.StatusBackoff, attempt+1)
		default:
			wait = backoff.Linear(c.cfg.NetworkBackoff, attempt+1)
		}

		if attempt == cl.retries {
			break
		}
		c.logger.Debug("请求失败，准备重试",
			zap.String("label", cl.label),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: %w", cl.label, lastErr)
}

// decodeError 标记 JSON 解析失败，便于按状态类错误退避
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "解析 JSON 失败: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

// attempt 执行一次带超时的请求
func (c *Client) attempt(ctx context.Context, url string, out any, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 读空响应体以便连接复用
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Code: resp.StatusCode, URL: url}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("%w: content-type=%q", ErrNotJSON, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := sonnet.Unmarshal(body, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// sleepCtx 等待 d，ctx 取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
