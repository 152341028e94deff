package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值（与上游 ACC 状态 API 的更新节奏保持一致）
const (
	DefaultStatusAPIURL   = "https://acc-status.jonatan.net/api/v2/acc/status"
	DefaultStatusPageURL  = "https://acc-status.jonatan.net/"
	DefaultTimeout        = "10s"
	DefaultUpdateInterval = "5m"
	DefaultDelayOffset    = "30s"
	DefaultHistoryPath    = "acc_metrics.json"
	DefaultSQLitePath     = "acc_monitor.db"
	DefaultAPIAddr        = ":8080"

	StorageTypeFile     = "file"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
)

// Config 监测配置（单次运行期间只读）
type Config struct {
	// 上游状态 API
	StatusAPI StatusAPIConfig `yaml:"status_api" json:"status_api"`

	// 告警阈值
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`

	// Webhook 通知
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`

	// 历史存储
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// 常驻模式（可选）
	Daemon DaemonConfig `yaml:"daemon" json:"daemon"`

	// 强制发送通知（仅来自环境变量 / 命令行，不从文件读取）
	ForceNotification bool `yaml:"-" json:"-"`
}

// StatusAPIConfig 上游状态 API 配置
type StatusAPIConfig struct {
	URL       string `yaml:"url" json:"url"`
	StatusURL string `yaml:"status_page_url" json:"status_page_url"` // 通知中的跳转链接
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// 请求超时（Go duration 格式，默认 "10s"）
	Timeout         string        `yaml:"timeout" json:"timeout"`
	TimeoutDuration time.Duration `yaml:"-" json:"-"`

	// 上游数据刷新间隔（默认 5m），常驻模式按此对齐巡检
	UpdateInterval         string        `yaml:"update_interval" json:"update_interval"`
	UpdateIntervalDuration time.Duration `yaml:"-" json:"-"`

	// 刷新后的延迟偏移（默认 30s），避开上游缓存
	DelayOffset         string        `yaml:"delay_offset" json:"delay_offset"`
	DelayOffsetDuration time.Duration `yaml:"-" json:"-"`
}

// Thresholds 状态判定阈值
type Thresholds struct {
	MaxAcceptablePing  float64 `yaml:"max_acceptable_ping" json:"max_acceptable_ping"` // ms，超过为严重问题
	MinServersExpected int     `yaml:"min_servers_expected" json:"min_servers_expected"`
	MaxDataAgeMinutes  float64 `yaml:"max_data_age_minutes" json:"max_data_age_minutes"`
	WarningPing        float64 `yaml:"warning_ping" json:"warning_ping"` // ms，超过为警告
	WarningServers     int     `yaml:"warning_servers" json:"warning_servers"`
}

// WebhookConfig Webhook 通知配置
type WebhookConfig struct {
	URL        string `yaml:"url" json:"-"`   // 不输出到 JSON
	Token      string `yaml:"token" json:"-"` // 可选 Bearer 凭据，原样透传
	Username   string `yaml:"username" json:"username"`
	AvatarURL  string `yaml:"avatar_url" json:"avatar_url"`
	FooterIcon string `yaml:"footer_icon" json:"footer_icon"`

	// 发送超时（默认与 status_api.timeout 相同）
	Timeout         string        `yaml:"timeout" json:"timeout"`
	TimeoutDuration time.Duration `yaml:"-" json:"-"`
}

// StorageConfig 历史存储配置
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // "file"、"sqlite" 或 "postgres"

	File     FileConfig     `yaml:"file" json:"file"`
	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// FileConfig JSON 文件存储配置
type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SQLiteConfig SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN      string `yaml:"dsn" json:"-"`
	MaxConns int    `yaml:"max_conns" json:"max_conns"`
}

// DaemonConfig 常驻模式配置
type DaemonConfig struct {
	// 巡检间隔，为空时使用 status_api.update_interval
	Interval         string        `yaml:"interval" json:"interval"`
	IntervalDuration time.Duration `yaml:"-" json:"-"`

	// 只读 HTTP API 监听地址
	Addr string `yaml:"addr" json:"addr"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		StatusAPI: StatusAPIConfig{
			URL:            DefaultStatusAPIURL,
			StatusURL:      DefaultStatusPageURL,
			Timeout:        DefaultTimeout,
			UpdateInterval: DefaultUpdateInterval,
			DelayOffset:    DefaultDelayOffset,
		},
		Thresholds: Thresholds{
			MaxAcceptablePing:  150,
			MinServersExpected: 1000,
			MaxDataAgeMinutes:  15,
			WarningPing:        100,
			WarningServers:     1200,
		},
		Webhook: WebhookConfig{
			Username:   "ACC Status",
			FooterIcon: "https://cdn.cloudflare.steamstatic.com/steam/apps/805550/header.jpg",
		},
		Storage: StorageConfig{
			Type:   StorageTypeFile,
			File:   FileConfig{Path: DefaultHistoryPath},
			SQLite: SQLiteConfig{Path: DefaultSQLitePath},
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Daemon: DaemonConfig{
			Addr: DefaultAPIAddr,
		},
	}
}

// Parse 在默认配置基础上解析 YAML（未出现的字段保留默认值）
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

// Normalize 解析 duration 字段并补齐空值
func (c *Config) Normalize() error {
	var err error

	if strings.TrimSpace(c.StatusAPI.Timeout) == "" {
		c.StatusAPI.Timeout = DefaultTimeout
	}
	if c.StatusAPI.TimeoutDuration, err = parsePositiveDuration(c.StatusAPI.Timeout, "status_api.timeout"); err != nil {
		return err
	}

	if strings.TrimSpace(c.StatusAPI.UpdateInterval) == "" {
		c.StatusAPI.UpdateInterval = DefaultUpdateInterval
	}
	if c.StatusAPI.UpdateIntervalDuration, err = parsePositiveDuration(c.StatusAPI.UpdateInterval, "status_api.update_interval"); err != nil {
		return err
	}

	if strings.TrimSpace(c.StatusAPI.DelayOffset) == "" {
		c.StatusAPI.DelayOffset = "0s"
	}
	if c.StatusAPI.DelayOffsetDuration, err = time.ParseDuration(c.StatusAPI.DelayOffset); err != nil || c.StatusAPI.DelayOffsetDuration < 0 {
		return fmt.Errorf("status_api.delay_offset 格式无效: %q", c.StatusAPI.DelayOffset)
	}

	// webhook 超时默认与上游请求一致
	if strings.TrimSpace(c.Webhook.Timeout) == "" {
		c.Webhook.TimeoutDuration = c.StatusAPI.TimeoutDuration
	} else if c.Webhook.TimeoutDuration, err = parsePositiveDuration(c.Webhook.Timeout, "webhook.timeout"); err != nil {
		return err
	}

	if strings.TrimSpace(c.Daemon.Interval) == "" {
		c.Daemon.IntervalDuration = c.StatusAPI.UpdateIntervalDuration
	} else if c.Daemon.IntervalDuration, err = parsePositiveDuration(c.Daemon.Interval, "daemon.interval"); err != nil {
		return err
	}
	if c.Daemon.Addr == "" {
		c.Daemon.Addr = DefaultAPIAddr
	}

	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	if c.Storage.Type == "" {
		c.Storage.Type = StorageTypeFile
	}
	if c.Storage.File.Path == "" {
		c.Storage.File.Path = DefaultHistoryPath
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	if c.Storage.Postgres.MaxConns <= 0 {
		c.Storage.Postgres.MaxConns = 4
	}
	if c.StatusAPI.StatusURL == "" {
		c.StatusAPI.StatusURL = DefaultStatusPageURL
	}

	return nil
}

// HasWebhook 是否配置了通知目标
func (c *Config) HasWebhook() bool {
	return strings.TrimSpace(c.Webhook.URL) != ""
}

// Clone 拷贝配置（热更新回滚用；Config 不含引用类型字段）
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func parsePositiveDuration(raw, field string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s 格式无效: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须大于 0，当前值: %s", field, raw)
	}
	return d, nil
}

// Loader 配置加载器
// 保存最近一次成功加载的配置，热更新失败时回滚
type Loader struct {
	mu       sync.RWMutex
	current  *Config
	lastPath string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// Load 加载配置：默认值 → YAML 文件（可选）→ 环境变量 → 校验
// 配置文件不存在时仅使用默认值和环境变量
func (l *Loader) Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			data = b
		case errors.Is(err, os.ErrNotExist):
			// 允许无配置文件运行（定时任务场景下全部来自环境变量）
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.lastPath = path
	l.mu.Unlock()

	return cfg, nil
}

// LoadOrRollback 重新加载配置，失败时保留上一次的有效配置
func (l *Loader) LoadOrRollback(path string) (*Config, error) {
	l.mu.RLock()
	prev := l.current
	l.mu.RUnlock()

	cfg, err := l.Load(path)
	if err != nil {
		if prev != nil {
			return prev.Clone(), fmt.Errorf("新配置无效，已保留旧配置: %w", err)
		}
		return nil, err
	}
	return cfg, nil
}

// Current 返回当前生效的配置
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
