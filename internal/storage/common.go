// Package storage 提供巡检历史的持久化（JSON 文件 / SQLite / PostgreSQL）
package storage

import (
	"encoding/json"
	"fmt"
)

// decodeSnapshot 解析单条记录并校验派生状态
func decodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := checkSnapshot(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// checkSnapshot 拒绝语法正确但语义无效的记录（未知状态、缺少时间戳）
func checkSnapshot(s *Snapshot) error {
	if !s.Status.Valid() {
		return fmt.Errorf("未知状态: %q", s.Status)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("记录缺少时间戳 (id=%s)", s.ID)
	}
	return nil
}

// encodeSnapshot 序列化单条记录（SQL 后端的 payload 列）
func encodeSnapshot(s *Snapshot) ([]byte, error) {
	if s.Issues == nil {
		cp := *s
		cp.Issues = []string{}
		s = &cp
	}
	return json.Marshal(s)
}
