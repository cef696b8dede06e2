// Package config 负责加载和验证 YAML 配置文件。
// 提供看板运行所需的全部配置项，包括刷新间隔、HTTP 重试、交易所与参考价格端点、缓存有效期等。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvConfig    = "KIMPVIEW_CONFIG"
	EnvProxyBase = "KIMPVIEW_PROXY_BASE"
	EnvListen    = "KIMPVIEW_LISTEN"
	EnvLogLevel  = "KIMPVIEW_LOG_LEVEL"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Refresh 刷新循环配置
	Refresh RefreshConfig `yaml:"refresh"`
	// HTTP 共享 HTTP 客户端配置
	HTTP HTTPConfig `yaml:"http"`
	// Upbit 本地交易所 A 配置
	Upbit UpbitConfig `yaml:"upbit"`
	// Bithumb 本地交易所 B 配置
	Bithumb BithumbConfig `yaml:"bithumb"`
	// Reference 参考价格配置
	Reference ReferenceConfig `yaml:"reference"`
	// MarketCap 市值配置
	MarketCap MarketCapConfig `yaml:"market_cap"`
	// TopMetrics 顶部指标配置
	TopMetrics TopMetricsConfig `yaml:"top_metrics"`
	// Calc 价差计算配置
	Calc CalcConfig `yaml:"calc"`
	// Cache 缓存有效期配置
	Cache CacheConfig `yaml:"cache"`
	// Render 渲染配置
	Render RenderConfig `yaml:"render"`
	// Storage 本地存储配置
	Storage StorageConfig `yaml:"storage"`
	// Server WebSocket 推送服务配置
	Server ServerConfig `yaml:"server"`
	// UI 终端界面配置
	UI UIConfig `yaml:"ui"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// Version 应用版本，变化时清除持久化缓存
	Version string `yaml:"version"`
	// ProxyBase 代理服务根地址，未单独配置的交易所与市值地址由此派生
	ProxyBase string `yaml:"proxy_base"`
}

// RefreshConfig 刷新循环配置
type RefreshConfig struct {
	// TableIntervalMs 行情表刷新间隔（毫秒）
	TableIntervalMs int `yaml:"table_interval_ms"`
	// MetricsIntervalMs 顶部指标刷新间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
}

// HTTPConfig 共享 HTTP 客户端配置
type HTTPConfig struct {
	// TimeoutMs 单次请求默认超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// Retries 重试次数，未配置时为 2
	Retries *int `yaml:"retries"`
	// NetworkBackoffMs 网络错误退避基数（毫秒）
	NetworkBackoffMs int `yaml:"network_backoff_ms"`
	// StatusBackoffMs 429/5xx/非 JSON 退避基数（毫秒）
	StatusBackoffMs int `yaml:"status_backoff_ms"`
	// UserAgent 请求头
	UserAgent string `yaml:"user_agent"`
}

// UpbitConfig 本地交易所 A 配置
type UpbitConfig struct {
	// BaseURL API 或代理地址
	BaseURL string `yaml:"base_url"`
	// BatchSize 每批行情请求的市场数
	BatchSize int `yaml:"batch_size"`
	// ColdCap 冷启动时的市场上限
	ColdCap int `yaml:"cold_cap"`
	// WarmCap 已有表格快照时的市场上限
	WarmCap int `yaml:"warm_cap"`
	// Must 必须包含的市场，如 KRW-BTC
	Must []string `yaml:"must"`
	// ListingTimeoutMs 上架信息请求超时（毫秒）
	ListingTimeoutMs int `yaml:"listing_timeout_ms"`
	// TickerTimeoutMs 行情请求超时（毫秒）
	TickerTimeoutMs int `yaml:"ticker_timeout_ms"`
}

// BithumbConfig 本地交易所 B 配置
type BithumbConfig struct {
	// BaseURL API 或代理地址
	BaseURL string `yaml:"base_url"`
	// TimeoutMs 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// ReferenceConfig 参考价格配置
type ReferenceConfig struct {
	// Endpoints 依次尝试的端点（主端点在前）
	Endpoints []string `yaml:"endpoints"`
	// ExchangeInfoURL 上架信息地址
	ExchangeInfoURL string `yaml:"exchange_info_url"`
	// Quote 参考报价资产
	Quote string `yaml:"quote"`
	// TimeoutMs 行情请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// MarketCapConfig 市值配置
type MarketCapConfig struct {
	// URL 市值代理地址，为空时不显示市值
	URL string `yaml:"url"`
	// TimeoutMs 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// FxSourceConfig 单个汇率来源
type FxSourceConfig struct {
	// Name 来源名称
	Name string `yaml:"name"`
	// URL 请求地址
	URL string `yaml:"url"`
	// Path 响应中汇率字段路径，如 [rates, KRW]
	Path []string `yaml:"path"`
}

// TopMetricsConfig 顶部指标配置
type TopMetricsConfig struct {
	// FxSources 依次尝试的汇率来源
	FxSources []FxSourceConfig `yaml:"fx_sources"`
	// UpbitUSDTURL KRW-USDT 行情地址
	UpbitUSDTURL string `yaml:"upbit_usdt_url"`
	// BithumbTickerURL Bithumb 全市场行情地址
	BithumbTickerURL string `yaml:"bithumb_ticker_url"`
	// GlobalStatsURL 全市场统计地址，可为空
	GlobalStatsURL string `yaml:"global_stats_url"`
	// TimeoutMs 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// CalcConfig 价差计算配置
type CalcConfig struct {
	// Stablecoin 参考价恒为 1 的稳定币
	Stablecoin string `yaml:"stablecoin"`
	// GapLimitPct 价差绝对值达到该值时视为异常并置空
	GapLimitPct float64 `yaml:"gap_limit_pct"`
	// SummaryLimitPct 汇总时忽略绝对值不小于该值的价差
	SummaryLimitPct float64 `yaml:"summary_limit_pct"`
}

// CacheConfig 缓存有效期配置（毫秒）
type CacheConfig struct {
	// TableTTLMs 表格快照
	TableTTLMs int `yaml:"table_ttl_ms"`
	// ReferenceTTLMs 参考价格与成交额
	ReferenceTTLMs int `yaml:"reference_ttl_ms"`
	// ActiveTTLMs 可交易集合
	ActiveTTLMs int `yaml:"active_ttl_ms"`
	// CapsTTLMs 市值
	CapsTTLMs int `yaml:"caps_ttl_ms"`
	// TopMetricsTTLMs 顶部指标
	TopMetricsTTLMs int `yaml:"top_metrics_ttl_ms"`
	// ListingTTLMs 交易所上架信息
	ListingTTLMs int `yaml:"listing_ttl_ms"`
}

// RenderConfig 渲染配置
type RenderConfig struct {
	// MaxOpenDetails 同时展开的详情面板上限
	MaxOpenDetails int `yaml:"max_open_details"`
}

// StorageConfig 本地存储配置
type StorageConfig struct {
	// Path SQLite 文件路径，":memory:" 使用内存存储
	Path string `yaml:"path"`
}

// ServerConfig WebSocket 推送服务配置
type ServerConfig struct {
	// Listen 监听地址
	Listen string `yaml:"listen"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// WriteTimeoutMs 单次写入超时（毫秒）
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

// UIConfig 终端界面配置
type UIConfig struct {
	// Enabled 是否启动终端界面
	Enabled bool `yaml:"enabled"`
	// Exchange 初始选择的交易所: upbit_krw, bithumb_krw
	Exchange string `yaml:"exchange"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// CyclesEnabled 是否输出每个刷新周期的记录
	CyclesEnabled bool `yaml:"cycles_enabled"`
	// MetricsEnabled 是否输出指标文件
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsIntervalMs 指标输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径，为空时只使用默认值与环境变量
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// 环境变量覆盖文件中的值，再派生默认值
	cfg.ApplyEnv(os.LookupEnv)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv 用环境变量覆盖配置
// 参数 lookup: 环境变量查询函数（通常为 os.LookupEnv）
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvProxyBase); ok && strings.TrimSpace(v) != "" {
		c.App.ProxyBase = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvListen); ok && strings.TrimSpace(v) != "" {
		c.Server.Listen = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.App.LogLevel = strings.TrimSpace(v)
	}
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	// 应用默认值
	if c.App.Name == "" {
		c.App.Name = "kimchi-premium-tracker"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Version == "" {
		c.App.Version = "1"
	}
	proxy := strings.TrimRight(c.App.ProxyBase, "/")

	// 刷新间隔
	if c.Refresh.TableIntervalMs == 0 {
		c.Refresh.TableIntervalMs = 2000 // 2 秒
	}
	if c.Refresh.MetricsIntervalMs == 0 {
		c.Refresh.MetricsIntervalMs = 60000 // 60 秒
	}

	// HTTP 默认值
	if c.HTTP.TimeoutMs == 0 {
		c.HTTP.TimeoutMs = 8000
	}
	if c.HTTP.Retries == nil {
		n := 2
		c.HTTP.Retries = &n
	}
	if c.HTTP.NetworkBackoffMs == 0 {
		c.HTTP.NetworkBackoffMs = 200
	}
	if c.HTTP.StatusBackoffMs == 0 {
		c.HTTP.StatusBackoffMs = 250
	}

	// 本地交易所
	if c.Upbit.BaseURL == "" {
		c.Upbit.BaseURL = orProxy(proxy, "/upbit", "https://api.upbit.com")
	}
	if c.Upbit.BatchSize == 0 {
		c.Upbit.BatchSize = 60
	}
	if c.Upbit.ColdCap == 0 {
		c.Upbit.ColdCap = 120
	}
	if c.Upbit.WarmCap == 0 {
		c.Upbit.WarmCap = 400
	}
	if c.Upbit.ListingTimeoutMs == 0 {
		c.Upbit.ListingTimeoutMs = 12000
	}
	if c.Upbit.TickerTimeoutMs == 0 {
		c.Upbit.TickerTimeoutMs = 8000
	}
	if c.Bithumb.BaseURL == "" {
		c.Bithumb.BaseURL = orProxy(proxy, "/bithumb", "https://api.bithumb.com")
	}
	if c.Bithumb.TimeoutMs == 0 {
		c.Bithumb.TimeoutMs = 8000
	}

	// 参考价格
	if len(c.Reference.Endpoints) == 0 {
		c.Reference.Endpoints = []string{"https://data-api.binance.vision", "https://api.binance.com"}
	}
	if c.Reference.ExchangeInfoURL == "" {
		c.Reference.ExchangeInfoURL = "https://api.binance.com/api/v3/exchangeInfo"
	}
	if c.Reference.Quote == "" {
		c.Reference.Quote = "USDT"
	}
	if c.Reference.TimeoutMs == 0 {
		c.Reference.TimeoutMs = 7000
	}

	// 市值
	if c.MarketCap.URL == "" && proxy != "" {
		c.MarketCap.URL = proxy + "/coinpaprika-caps"
	}
	if c.MarketCap.TimeoutMs == 0 {
		c.MarketCap.TimeoutMs = 8000
	}

	// 顶部指标
	if len(c.TopMetrics.FxSources) == 0 {
		if proxy != "" {
			c.TopMetrics.FxSources = append(c.TopMetrics.FxSources,
				FxSourceConfig{Name: "proxy-google", URL: proxy + "/fx/google", Path: []string{"rate"}})
		}
		c.TopMetrics.FxSources = append(c.TopMetrics.FxSources,
			FxSourceConfig{Name: "open-er-api", URL: "https://open.er-api.com/v6/latest/USD", Path: []string{"rates", "KRW"}},
			FxSourceConfig{Name: "frankfurter", URL: "https://api.frankfurter.app/latest?from=USD&to=KRW", Path: []string{"rates", "KRW"}},
		)
	}
	if c.TopMetrics.UpbitUSDTURL == "" && proxy != "" {
		c.TopMetrics.UpbitUSDTURL = proxy + "/upbit?market=KRW-USDT"
	}
	if c.TopMetrics.BithumbTickerURL == "" {
		c.TopMetrics.BithumbTickerURL = c.Bithumb.BaseURL + "/public/ticker/ALL_KRW"
	}
	if c.TopMetrics.TimeoutMs == 0 {
		c.TopMetrics.TimeoutMs = 12000
	}

	// 价差计算
	if c.Calc.Stablecoin == "" {
		c.Calc.Stablecoin = "USDT"
	}
	if c.Calc.GapLimitPct == 0 {
		c.Calc.GapLimitPct = 50
	}
	if c.Calc.SummaryLimitPct == 0 {
		c.Calc.SummaryLimitPct = 10
	}

	// 缓存有效期
	if c.Cache.TableTTLMs == 0 {
		c.Cache.TableTTLMs = 10000 // 10 秒
	}
	if c.Cache.ReferenceTTLMs == 0 {
		c.Cache.ReferenceTTLMs = 3000 // 3 秒
	}
	if c.Cache.ActiveTTLMs == 0 {
		c.Cache.ActiveTTLMs = 60000 // 60 秒
	}
	if c.Cache.CapsTTLMs == 0 {
		c.Cache.CapsTTLMs = 12 * 60 * 60 * 1000 // 12 小时
	}
	if c.Cache.TopMetricsTTLMs == 0 {
		c.Cache.TopMetricsTTLMs = 60000
	}
	if c.Cache.ListingTTLMs == 0 {
		c.Cache.ListingTTLMs = 6 * 60 * 60 * 1000 // 6 小时
	}

	if c.Render.MaxOpenDetails == 0 {
		c.Render.MaxOpenDetails = 2
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "./data/kimpview.db"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.PingIntervalMs == 0 {
		c.Server.PingIntervalMs = 25000 // 25 秒
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 10000
	}

	if c.UI.Exchange == "" {
		c.UI.Exchange = "upbit_krw"
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.MetricsIntervalMs == 0 {
		c.Output.MetricsIntervalMs = 60000
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

func orProxy(proxy, suffix, fallback string) string {
	if proxy != "" {
		return proxy + suffix
	}
	return fallback
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 刷新间隔
	if c.Refresh.TableIntervalMs <= 0 {
		errs = append(errs, "refresh.table_interval_ms: 刷新间隔必须为正数")
	}
	if c.Refresh.MetricsIntervalMs <= 0 {
		errs = append(errs, "refresh.metrics_interval_ms: 指标刷新间隔必须为正数")
	}

	// HTTP
	if c.HTTP.TimeoutMs <= 0 {
		errs = append(errs, "http.timeout_ms: 超时必须为正数")
	}
	if c.HTTP.Retries != nil && (*c.HTTP.Retries < 0 || *c.HTTP.Retries > 10) {
		errs = append(errs, fmt.Sprintf("http.retries: 重试次数必须在 0-10 之间，当前值: %d", *c.HTTP.Retries))
	}
	if c.HTTP.NetworkBackoffMs < 0 || c.HTTP.StatusBackoffMs < 0 {
		errs = append(errs, "http.*_backoff_ms: 退避基数不能为负数")
	}

	// 本地交易所
	if c.Upbit.BaseURL == "" {
		errs = append(errs, "upbit.base_url: 地址不能为空")
	}
	if c.Upbit.BatchSize <= 0 || c.Upbit.BatchSize > 100 {
		errs = append(errs, fmt.Sprintf("upbit.batch_size: 每批市场数必须在 1-100 之间，当前值: %d", c.Upbit.BatchSize))
	}
	if c.Upbit.ColdCap <= 0 {
		errs = append(errs, "upbit.cold_cap: 市场上限必须为正数")
	}
	if c.Upbit.WarmCap < c.Upbit.ColdCap {
		errs = append(errs, "upbit.warm_cap: 不能小于 cold_cap")
	}
	if c.Bithumb.BaseURL == "" {
		errs = append(errs, "bithumb.base_url: 地址不能为空")
	}

	// 参考价格
	for i, ep := range c.Reference.Endpoints {
		if strings.TrimSpace(ep) == "" {
			errs = append(errs, fmt.Sprintf("reference.endpoints[%d]: 端点不能为空", i))
		}
	}
	if c.Reference.ExchangeInfoURL == "" {
		errs = append(errs, "reference.exchange_info_url: 上架信息地址不能为空")
	}

	// 顶部指标
	for i, s := range c.TopMetrics.FxSources {
		if s.URL == "" {
			errs = append(errs, fmt.Sprintf("top_metrics.fx_sources[%d].url: 地址不能为空", i))
		}
		if len(s.Path) == 0 {
			errs = append(errs, fmt.Sprintf("top_metrics.fx_sources[%d].path: 字段路径不能为空", i))
		}
	}

	// 价差计算
	if c.Calc.GapLimitPct <= 0 || c.Calc.GapLimitPct > 1000 {
		errs = append(errs, fmt.Sprintf("calc.gap_limit_pct: 价差阈值必须在 (0, 1000] 之间，当前值: %f", c.Calc.GapLimitPct))
	}
	if c.Calc.SummaryLimitPct <= 0 {
		errs = append(errs, "calc.summary_limit_pct: 汇总阈值必须为正数")
	}

	// 缓存有效期
	ttls := []struct {
		field string
		v     int
	}{
		{"cache.table_ttl_ms", c.Cache.TableTTLMs},
		{"cache.reference_ttl_ms", c.Cache.ReferenceTTLMs},
		{"cache.active_ttl_ms", c.Cache.ActiveTTLMs},
		{"cache.caps_ttl_ms", c.Cache.CapsTTLMs},
		{"cache.top_metrics_ttl_ms", c.Cache.TopMetricsTTLMs},
		{"cache.listing_ttl_ms", c.Cache.ListingTTLMs},
	}
	for _, t := range ttls {
		if t.v <= 0 {
			errs = append(errs, fmt.Sprintf("%s: 有效期必须为正数", t.field))
		}
	}

	if c.Render.MaxOpenDetails <= 0 {
		errs = append(errs, "render.max_open_details: 面板上限必须为正数")
	}

	if c.Server.Listen == "" {
		errs = append(errs, "server.listen: 监听地址不能为空")
	}

	if c.UI.Exchange != "upbit_krw" && c.UI.Exchange != "bithumb_krw" {
		errs = append(errs, fmt.Sprintf("ui.exchange: 无效的交易所 '%s'，有效值: upbit_krw, bithumb_krw", c.UI.Exchange))
	}

	if c.Output.BufferSize < 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小不能为负数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Ms 把毫秒配置值转换为时长
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RetryCount 有效重试次数
func (h *HTTPConfig) RetryCount() int {
	if h.Retries == nil {
		return 2
	}
	return *h.Retries
}
