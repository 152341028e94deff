package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate 验证配置合法性（硬错误）
// webhook 地址不在此校验：地址错误只影响发送通知，评估和历史仍照常进行
func (c *Config) Validate() error {
	if err := validateURL(c.StatusAPI.URL, "status_api.url", true); err != nil {
		return err
	}

	t := c.Thresholds
	if t.MaxAcceptablePing < 0 || t.WarningPing < 0 {
		return fmt.Errorf("ping 阈值不能为负数: max=%v warning=%v", t.MaxAcceptablePing, t.WarningPing)
	}
	if t.MinServersExpected < 0 || t.WarningServers < 0 {
		return fmt.Errorf("服务器数量阈值不能为负数: min=%d warning=%d", t.MinServersExpected, t.WarningServers)
	}
	if t.MaxDataAgeMinutes <= 0 {
		return fmt.Errorf("thresholds.max_data_age_minutes 必须大于 0，当前值: %v", t.MaxDataAgeMinutes)
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if strings.TrimSpace(c.Storage.File.Path) == "" {
			return fmt.Errorf("storage.file.path 不能为空")
		}
	case StorageTypeSQLite:
		if strings.TrimSpace(c.Storage.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path 不能为空")
		}
	case StorageTypePostgres:
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return fmt.Errorf("storage.postgres.dsn 不能为空（环境变量 ACC_POSTGRES_DSN）")
		}
	default:
		return fmt.Errorf("不支持的存储类型: %s（可选 file/sqlite/postgres）", c.Storage.Type)
	}

	return nil
}

// Warnings 返回阈值之间的矛盾配置以及无效的 webhook 地址
// 不自动修正：判定时严重阈值优先，警告阈值仅在对应严重阈值未触发时生效
func (c *Config) Warnings() []string {
	var warnings []string
	t := c.Thresholds

	if t.WarningPing > t.MaxAcceptablePing {
		warnings = append(warnings, fmt.Sprintf(
			"warning_ping(%v) 大于 max_acceptable_ping(%v)，ping 警告永远不会触发", t.WarningPing, t.MaxAcceptablePing))
	}
	if t.WarningServers < t.MinServersExpected {
		warnings = append(warnings, fmt.Sprintf(
			"warning_servers(%d) 小于 min_servers_expected(%d)，服务器数量警告永远不会触发", t.WarningServers, t.MinServersExpected))
	}
	if err := c.Webhook.Validate(); err != nil {
		warnings = append(warnings, err.Error()+"，通知将无法发送")
	}
	return warnings
}

// Validate 校验 webhook 地址（未配置视为合法）
func (w *WebhookConfig) Validate() error {
	return validateURL(w.URL, "webhook.url", false)
}

// validateURL 验证 URL 格式和协议
func validateURL(rawURL, fieldName string, required bool) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		if required {
			return fmt.Errorf("%s 不能为空", fieldName)
		}
		return nil
	}

	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return fmt.Errorf("%s 格式无效: %w", fieldName, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%s 只支持 http:// 或 https:// 协议，收到: %s", fieldName, parsed.Scheme)
	}
	return nil
}
