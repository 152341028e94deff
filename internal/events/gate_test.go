package events

import (
	"testing"
	"time"

	"accmonitor/internal/storage"
)

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func snap(status storage.Status, minutes int) *storage.Snapshot {
	return &storage.Snapshot{
		ID:        string(status),
		Timestamp: baseTime.Add(time.Duration(minutes) * time.Minute),
		Status:    status,
	}
}

func TestGateDecide(t *testing.T) {
	tests := []struct {
		name       string
		prev       *storage.Snapshot
		next       *storage.Snapshot
		force      bool
		wantNotify bool
		wantReason Reason
	}{
		{
			name:       "首次运行",
			prev:       nil,
			next:       snap(storage.StatusUp, 0),
			wantNotify: true,
			wantReason: ReasonFirstRun,
		},
		{
			name:       "UP → DOWN",
			prev:       snap(storage.StatusUp, 0),
			next:       snap(storage.StatusDown, 5),
			wantNotify: true,
			wantReason: ReasonStatusChanged,
		},
		{
			name:       "连续 UP 不通知",
			prev:       snap(storage.StatusUp, 0),
			next:       snap(storage.StatusUp, 5),
			wantNotify: false,
			wantReason: ReasonUnchanged,
		},
		{
			name:       "连续 DEGRADED 不通知",
			prev:       snap(storage.StatusDegraded, 0),
			next:       snap(storage.StatusDegraded, 5),
			wantNotify: false,
			wantReason: ReasonUnchanged,
		},
		{
			name:       "连续 UNKNOWN 不通知",
			prev:       snap(storage.StatusUnknown, 0),
			next:       snap(storage.StatusUnknown, 5),
			wantNotify: false,
			wantReason: ReasonUnchanged,
		},
		{
			name:       "连续 DOWN 仍然通知",
			prev:       snap(storage.StatusDown, 0),
			next:       snap(storage.StatusDown, 5),
			wantNotify: true,
			wantReason: ReasonCritical,
		},
		{
			name:       "连续 API_ERROR 仍然通知",
			prev:       snap(storage.StatusAPIError, 0),
			next:       snap(storage.StatusAPIError, 5),
			wantNotify: true,
			wantReason: ReasonCritical,
		},
		{
			name:       "强制通知",
			prev:       snap(storage.StatusUp, 0),
			next:       snap(storage.StatusUp, 5),
			force:      true,
			wantNotify: true,
			wantReason: ReasonForced,
		},
		{
			name:       "状态变化优先于强制",
			prev:       snap(storage.StatusUp, 0),
			next:       snap(storage.StatusDegraded, 5),
			force:      true,
			wantNotify: true,
			wantReason: ReasonStatusChanged,
		},
	}

	gate := NewGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Decide(tt.prev, tt.next, tt.force)
			if d.Notify != tt.wantNotify {
				t.Errorf("Notify = %v, want %v", d.Notify, tt.wantNotify)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.wantReason)
			}
			if d.To != tt.next.Status {
				t.Errorf("To = %s, want %s", d.To, tt.next.Status)
			}
			if tt.prev == nil && d.From != "" {
				t.Errorf("首次运行 From 应为空, got %s", d.From)
			}
		})
	}
}

// 强制标志对任意状态组合都生效
func TestGateForceAlwaysNotifies(t *testing.T) {
	gate := NewGate()
	all := []storage.Status{
		storage.StatusUp, storage.StatusDegraded, storage.StatusDown,
		storage.StatusUnknown, storage.StatusAPIError,
	}
	for _, from := range all {
		for _, to := range all {
			if d := gate.Decide(snap(from, 0), snap(to, 5), true); !d.Notify {
				t.Errorf("%s → %s force=true 应通知", from, to)
			}
		}
	}
}

func TestOfflineSince(t *testing.T) {
	history := []*storage.Snapshot{
		snap(storage.StatusDown, 0),
		snap(storage.StatusUp, 5),
		snap(storage.StatusDown, 10),
		snap(storage.StatusDown, 15),
	}

	since, ok := OfflineSince(history, snap(storage.StatusDown, 20))
	if !ok {
		t.Fatal("DOWN 时应返回起点")
	}
	if want := baseTime.Add(10 * time.Minute); !since.Equal(want) {
		t.Errorf("since = %v, want %v", since, want)
	}

	// 刚刚转为 DOWN：起点就是本次
	next := snap(storage.StatusDown, 25)
	since, ok = OfflineSince([]*storage.Snapshot{snap(storage.StatusUp, 20)}, next)
	if !ok || !since.Equal(next.Timestamp) {
		t.Errorf("since = %v ok=%v, want %v", since, ok, next.Timestamp)
	}

	// API_ERROR 中断连续段
	since, _ = OfflineSince([]*storage.Snapshot{
		snap(storage.StatusDown, 0),
		snap(storage.StatusAPIError, 5),
		snap(storage.StatusDown, 10),
	}, snap(storage.StatusDown, 15))
	if want := baseTime.Add(10 * time.Minute); !since.Equal(want) {
		t.Errorf("since = %v, want %v", since, want)
	}

	if _, ok := OfflineSince(history, snap(storage.StatusUp, 20)); ok {
		t.Error("非 DOWN 不应返回起点")
	}
}
