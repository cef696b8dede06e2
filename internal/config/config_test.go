// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// createValidConfig 创建一个有效的配置用于测试
func createValidConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// **Feature: kimchi-premium-tracker, Property 20: Config Validation Correctness**
// **Validates: Requirements 15.3**

// TestConfigValidation_GapLimit 测试价差阈值验证
func TestConfigValidation_GapLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// 属性: 阈值 <= 0 应验证失败
	properties.Property("价差阈值非正数应验证失败", prop.ForAll(
		func(limit float64) bool {
			cfg := createValidConfig()
			cfg.Calc.GapLimitPct = limit
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, 0),
	))

	// 属性: 阈值在 (0, 1000] 内应验证通过
	properties.Property("价差阈值为正数应通过验证", prop.ForAll(
		func(limit float64) bool {
			cfg := createValidConfig()
			cfg.Calc.GapLimitPct = limit
			return cfg.Validate() == nil
		},
		gen.Float64Range(0.0001, 1000),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_Retries 测试重试次数验证
func TestConfigValidation_Retries(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("重试次数在 0-10 之间应通过验证", prop.ForAll(
		func(n int) bool {
			cfg := createValidConfig()
			cfg.HTTP.Retries = &n
			return cfg.Validate() == nil && cfg.HTTP.RetryCount() == n
		},
		gen.IntRange(0, 10),
	))

	properties.Property("重试次数超出范围应验证失败", prop.ForAll(
		func(n int) bool {
			cfg := createValidConfig()
			cfg.HTTP.Retries = &n
			return cfg.Validate() != nil
		},
		gen.OneGenOf(gen.IntRange(-100, -1), gen.IntRange(11, 100)),
	))

	properties.TestingRun(t)
}

func TestConfigValidation_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"刷新间隔", func(c *Config) { c.Refresh.TableIntervalMs = -1 }, "refresh.table_interval_ms"},
		{"批大小", func(c *Config) { c.Upbit.BatchSize = 101 }, "upbit.batch_size"},
		{"上限倒置", func(c *Config) { c.Upbit.WarmCap = 10 }, "upbit.warm_cap"},
		{"空端点", func(c *Config) { c.Reference.Endpoints = []string{" "} }, "reference.endpoints[0]"},
		{"汇率来源缺路径", func(c *Config) { c.TopMetrics.FxSources[0].Path = nil }, "top_metrics.fx_sources[0].path"},
		{"缓存有效期", func(c *Config) { c.Cache.ActiveTTLMs = -5 }, "cache.active_ttl_ms"},
		{"面板上限", func(c *Config) { c.Render.MaxOpenDetails = -1 }, "render.max_open_details"},
		{"交易所", func(c *Config) { c.UI.Exchange = "binance" }, "ui.exchange"},
		{"日志级别", func(c *Config) { c.App.LogLevel = "trace" }, "app.log_level"},
	}
	for _, tt := range tests {
		cfg := createValidConfig()
		tt.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: 应验证失败", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.field) {
			t.Errorf("%s: 错误信息缺少字段 %s: %v", tt.name, tt.field, err)
		}
	}
}

func TestConfigValidation_CollectsAllErrors(t *testing.T) {
	cfg := createValidConfig()
	cfg.Calc.SummaryLimitPct = -1
	cfg.Server.Listen = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("应验证失败")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "配置验证错误:") || strings.Count(msg, "\n  - ") != 2 {
		t.Errorf("错误格式 = %q", msg)
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := createValidConfig()
	if cfg.Refresh.TableIntervalMs != 2000 || cfg.Refresh.MetricsIntervalMs != 60000 {
		t.Errorf("Refresh = %+v", cfg.Refresh)
	}
	if cfg.HTTP.RetryCount() != 2 || cfg.HTTP.NetworkBackoffMs != 200 || cfg.HTTP.StatusBackoffMs != 250 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Calc.GapLimitPct != 50 || cfg.Calc.SummaryLimitPct != 10 || cfg.Calc.Stablecoin != "USDT" {
		t.Errorf("Calc = %+v", cfg.Calc)
	}
	if cfg.Upbit.BaseURL != "https://api.upbit.com" || cfg.MarketCap.URL != "" {
		t.Errorf("无代理时使用直连地址: upbit=%s caps=%s", cfg.Upbit.BaseURL, cfg.MarketCap.URL)
	}
	if got := Ms(cfg.Cache.CapsTTLMs); got != 12*time.Hour {
		t.Errorf("CapsTTL = %v, want 12h", got)
	}
	if len(cfg.TopMetrics.FxSources) != 2 {
		t.Errorf("FxSources = %+v", cfg.TopMetrics.FxSources)
	}
}

func TestApplyEnv_ProxyDerivesURLs(t *testing.T) {
	env := map[string]string{
		EnvProxyBase: "https://proxy.example/",
		EnvListen:    "127.0.0.1:9000",
		EnvLogLevel:  "debug",
	}
	cfg := &Config{}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	cfg.setDefaults()

	if cfg.Upbit.BaseURL != "https://proxy.example/upbit" {
		t.Errorf("Upbit.BaseURL = %s", cfg.Upbit.BaseURL)
	}
	if cfg.Bithumb.BaseURL != "https://proxy.example/bithumb" {
		t.Errorf("Bithumb.BaseURL = %s", cfg.Bithumb.BaseURL)
	}
	if cfg.MarketCap.URL != "https://proxy.example/coinpaprika-caps" {
		t.Errorf("MarketCap.URL = %s", cfg.MarketCap.URL)
	}
	if cfg.TopMetrics.FxSources[0].Name != "proxy-google" || len(cfg.TopMetrics.FxSources) != 3 {
		t.Errorf("FxSources = %+v", cfg.TopMetrics.FxSources)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" || cfg.App.LogLevel != "debug" {
		t.Errorf("Listen = %s, LogLevel = %s", cfg.Server.Listen, cfg.App.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
}

// TestLoad_ValidFile 测试从有效文件加载配置
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-tracker
  log_level: info
  version: "2025.10"

refresh:
  table_interval_ms: 3000

http:
  retries: 0

upbit:
  batch_size: 50
  must: [KRW-BTC, KRW-ETH]

calc:
  gap_limit_pct: 30

storage:
  path: ":memory:"

ui:
  enabled: true
  exchange: bithumb_krw

output:
  cycles_enabled: true
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-tracker" || cfg.App.Version != "2025.10" {
		t.Errorf("App = %+v", cfg.App)
	}
	if cfg.Refresh.TableIntervalMs != 3000 {
		t.Errorf("Refresh.TableIntervalMs = %d, want 3000", cfg.Refresh.TableIntervalMs)
	}
	if cfg.HTTP.RetryCount() != 0 {
		t.Errorf("显式配置的 0 次重试应保留, got %d", cfg.HTTP.RetryCount())
	}
	if cfg.Upbit.BatchSize != 50 || len(cfg.Upbit.Must) != 2 {
		t.Errorf("Upbit = %+v", cfg.Upbit)
	}
	if cfg.Calc.GapLimitPct != 30 {
		t.Errorf("Calc.GapLimitPct = %f, want 30", cfg.Calc.GapLimitPct)
	}
	if !cfg.UI.Enabled || cfg.UI.Exchange != "bithumb_krw" || !cfg.Output.CyclesEnabled {
		t.Errorf("UI = %+v, Output = %+v", cfg.UI, cfg.Output)
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}

// TestLoad_EmptyPathUsesDefaults 测试不指定文件时使用默认值
func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvProxyBase, "")
	t.Setenv(EnvListen, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.App.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.App.LogLevel)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %s", cfg.Server.Listen)
	}
}
