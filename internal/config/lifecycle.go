package config

import (
	"os"
	"strings"
)

// ApplyEnvOverrides 应用环境变量覆盖
// 凭据类配置（webhook、数据库 DSN）推荐只通过环境变量注入
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("WEBHOOK_TOKEN"); v != "" {
		c.Webhook.Token = v
	}
	if v := os.Getenv("ACC_STATUS_API_URL"); v != "" {
		c.StatusAPI.URL = v
	}
	if v := os.Getenv("ACC_TIMEOUT"); v != "" {
		c.StatusAPI.Timeout = v
	}

	// 存储配置
	if v := os.Getenv("ACC_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("ACC_HISTORY_PATH"); v != "" {
		c.Storage.File.Path = v
	}
	if v := os.Getenv("ACC_SQLITE_PATH"); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv("ACC_POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}

	if v := os.Getenv("ACC_API_ADDR"); v != "" {
		c.Daemon.Addr = v
	}

	c.ForceNotification = ParseBool(os.Getenv("FORCE_NOTIFICATION"))
}

// ParseBool 宽松解析布尔开关（true/1/yes/on，大小写不敏感）
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
