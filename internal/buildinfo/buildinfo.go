// Package buildinfo 构建信息，通过 -ldflags "-X" 注入
package buildinfo

import "runtime"

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// GetVersion 返回版本号
func GetVersion() string { return version }

// GetGitCommit 返回 git 提交哈希
func GetGitCommit() string { return gitCommit }

// GetBuildTime 返回构建时间
func GetBuildTime() string { return buildTime }

// GetGoVersion 返回 Go 运行时版本
func GetGoVersion() string { return runtime.Version() }

// UserAgent 上游请求使用的 User-Agent
func UserAgent() string {
	return "ACC-Monitor/" + version
}
