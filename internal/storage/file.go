package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"accmonitor/internal/logger"
)

// FileStorage JSON 文件存储（默认实现）
// 文件内容为记录数组，最旧在前
type FileStorage struct {
	path string
}

// NewFileStorage 创建文件存储
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path 存储文件路径
func (s *FileStorage) Path() string {
	return s.path
}

// Init 确保父目录存在
func (s *FileStorage) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建历史目录失败: %w", err)
	}
	return nil
}

// Close 文件存储无需关闭
func (s *FileStorage) Close() error {
	return nil
}

// Load 读取历史
// 文件不存在或为空视为空历史；无法解析时返回 ErrCorruptHistory，原文件保持不动
func (s *FileStorage) Load(ctx context.Context) (*History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewHistory(nil), nil
		}
		return NewHistory(nil), fmt.Errorf("读取历史文件失败: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return NewHistory(nil), nil
	}

	entries, parseErr := parseHistoryFile(data)
	if parseErr != nil {
		return NewHistory(nil), fmt.Errorf("%w: %s: %v", ErrCorruptHistory, s.path, parseErr)
	}

	return NewHistory(entries), nil
}

func parseHistoryFile(data []byte) ([]*Snapshot, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	entries := make([]*Snapshot, 0, len(raw))
	for i, item := range raw {
		snap, err := decodeSnapshot(item)
		if err != nil {
			return nil, fmt.Errorf("第 %d 条记录无效: %w", i, err)
		}
		entries = append(entries, snap)
	}
	return entries, nil
}

// Quarantine 将损坏的历史文件移到 <path>.corrupt，避免被下一次 Save 静默覆盖
func (s *FileStorage) Quarantine(ctx context.Context) error {
	target := s.path + ".corrupt"
	if err := os.Rename(s.path, target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("移动损坏的历史文件失败: %w", err)
	}
	logger.Warn("storage", "损坏的历史文件已移出", "path", s.path, "moved_to", target)
	return nil
}

// Save 原子写入：同目录临时文件 → fsync → rename 覆盖
func (s *FileStorage) Save(ctx context.Context, history *History) error {
	entries := history.Entries()
	if entries == nil {
		entries = []*Snapshot{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化历史失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建历史目录失败: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("写入历史文件失败: %w", err)
	}

	logger.Debug("storage", "历史已保存", "path", s.path, "entries", len(entries))
	return nil
}
