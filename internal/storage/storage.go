package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accmonitor/internal/config"
)

// Status 派生状态（由分类器根据上游状态码和阈值计算，不单独设置）
type Status string

const (
	StatusUp       Status = "UP"
	StatusDegraded Status = "DEGRADED"
	StatusDown     Status = "DOWN"
	StatusUnknown  Status = "UNKNOWN"
	StatusAPIError Status = "API_ERROR"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusUp, StatusDegraded, StatusDown, StatusUnknown, StatusAPIError:
		return true
	default:
		return false
	}
}

// IsCritical DOWN 和 API_ERROR 每次都需要通知
func (s Status) IsCritical() bool {
	return s == StatusDown || s == StatusAPIError
}

// Snapshot 单次巡检结果
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"` // UTC

	// 上游状态码：1=在线, 0=离线, -1=未知；上游不可达时为 nil
	APIStatusCode *int `json:"api_status_code"`

	// 派生状态，与 APIStatusCode 一同存储
	Status Status `json:"derived_status"`

	// 上游指标（缺失字段保持 nil，不补 0）
	PingMs         *float64 `json:"ping_ms,omitempty"`
	ServersOnline  *int     `json:"servers_online,omitempty"`
	PlayersOnline  *int     `json:"players_online,omitempty"`
	DataAgeMinutes *float64 `json:"data_age_minutes,omitempty"`

	// 请求耗时（毫秒）
	ResponseTimeMs int64 `json:"api_response_ms"`

	// 阈值触发的问题描述（有序）
	Issues []string `json:"issues"`

	// API_ERROR 时的失败原因
	Error string `json:"error,omitempty"`
}

// ErrCorruptHistory 持久化历史无法解析
// 调用方应视为空历史继续运行，并上报该错误
var ErrCorruptHistory = errors.New("历史记录已损坏")

// Storage 历史存储接口
//
// 单进程单次调用，不假设并发写入；Save 必须整体替换，
// 中途崩溃不能留下语法无效的存储给下一次运行
type Storage interface {
	// Init 初始化存储（建表 / 创建目录）
	Init(ctx context.Context) error

	// Close 关闭存储
	Close() error

	// Load 读取历史（最旧在前），不修改存储
	// 存储不存在或为空时返回空历史；损坏时返回空历史和 ErrCorruptHistory
	Load(ctx context.Context) (*History, error)

	// Save 用 history 整体替换已持久化的内容
	Save(ctx context.Context, history *History) error
}

// Quarantiner 可以把损坏的历史移到一旁的存储
// 只由巡检流程在 Load 返回 ErrCorruptHistory 后调用，只读接口不调用
type Quarantiner interface {
	Quarantine(ctx context.Context) error
}

// New 按配置创建存储实现
func New(cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case config.StorageTypeFile, "":
		return NewFileStorage(cfg.File.Path), nil
	case config.StorageTypeSQLite:
		return NewSQLiteStorage(cfg.SQLite.Path)
	case config.StorageTypePostgres:
		return NewPostgresStorage(&cfg.Postgres)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Type)
	}
}
