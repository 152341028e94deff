package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"accmonitor/internal/logger"
)

// LoadDotenvFromConfigDir 从配置文件所在目录加载 .env 文件
//
// 行为说明：
//   - 使用 godotenv.Load：不覆盖进程中已存在的环境变量（CI 注入的 secret 优先）
//   - .env 文件不存在时静默忽略（返回 nil）
//   - 其它错误（权限、格式等）会返回错误
func LoadDotenvFromConfigDir(configPath string) error {
	configDir := "."
	if configPath != "" {
		configDir = filepath.Dir(configPath)
	}
	dotenvPath := filepath.Join(configDir, ".env")

	if err := godotenv.Load(dotenvPath); err != nil {
		if _, statErr := os.Stat(dotenvPath); os.IsNotExist(statErr) {
			logger.Debug("config", "未找到 .env，跳过加载", "path", dotenvPath)
			return nil
		}
		return fmt.Errorf("加载 .env 失败 (%s): %w", dotenvPath, err)
	}

	logger.Info("config", "已加载 .env", "path", dotenvPath)
	return nil
}
