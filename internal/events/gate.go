// Package events 判断一次巡检结果是否需要发送通知
package events

import (
	"time"

	"accmonitor/internal/storage"
)

// Reason 通知（或不通知）的原因
type Reason string

const (
	ReasonFirstRun      Reason = "first_run"      // 没有历史记录
	ReasonStatusChanged Reason = "status_changed" // 派生状态变化
	ReasonCritical      Reason = "critical"       // DOWN / API_ERROR 每次都通知
	ReasonForced        Reason = "forced"         // 强制通知
	ReasonUnchanged     Reason = "unchanged"
)

// Decision 通知判定结果
type Decision struct {
	Notify bool
	Reason Reason

	// From 上一次的派生状态，首次运行为空
	From storage.Status
	To   storage.Status
}

// Gate 通知闸门（无状态，上一次状态由调用方从历史中取出）
type Gate struct{}

// NewGate 创建通知闸门
func NewGate() *Gate {
	return &Gate{}
}

// Decide 判定是否为显著变化
//
// 显著变化 := 首次运行 || 状态变化 || 新状态为 DOWN/API_ERROR || force
// 多个条件同时成立时，Reason 取上面顺序中的第一个。
func (g *Gate) Decide(prev, next *storage.Snapshot, force bool) Decision {
	d := Decision{To: next.Status}
	if prev != nil {
		d.From = prev.Status
	}

	switch {
	case prev == nil:
		d.Notify, d.Reason = true, ReasonFirstRun
	case prev.Status != next.Status:
		d.Notify, d.Reason = true, ReasonStatusChanged
	case next.Status.IsCritical():
		d.Notify, d.Reason = true, ReasonCritical
	case force:
		d.Notify, d.Reason = true, ReasonForced
	default:
		d.Notify, d.Reason = false, ReasonUnchanged
	}
	return d
}

// OfflineSince 返回当前这段连续 DOWN 的起点
//
// history 为 next 之前的记录（最旧在前）。从末尾向前找连续的 DOWN 记录，
// 起点为其中最早一条的时间；next 本身不是 DOWN 时返回 false。
// 中间夹着其他状态（包括 API_ERROR）即视为中断。
func OfflineSince(history []*storage.Snapshot, next *storage.Snapshot) (time.Time, bool) {
	if next == nil || next.Status != storage.StatusDown {
		return time.Time{}, false
	}

	since := next.Timestamp
	for i := len(history) - 1; i >= 0; i-- {
		s := history[i]
		if s == nil || s.Status != storage.StatusDown {
			break
		}
		if s.Timestamp.Before(since) {
			since = s.Timestamp
		}
	}
	return since, true
}
