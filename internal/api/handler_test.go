package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"accmonitor/internal/config"
	"accmonitor/internal/storage"
)

type fakeTrigger struct {
	calls []bool
	busy  bool
}

func (f *fakeTrigger) TriggerNow(force bool) bool {
	if f.busy {
		return false
	}
	f.calls = append(f.calls, force)
	return true
}

func newTestServer(t *testing.T, statuses ...storage.Status) (*Server, *fakeTrigger) {
	t.Helper()
	store := storage.NewFileStorage(filepath.Join(t.TempDir(), "history.json"))

	h := storage.NewHistory(nil)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range statuses {
		h.Append(&storage.Snapshot{
			ID:        fmt.Sprintf("snap-%d", i),
			Timestamp: base.Add(time.Duration(i*5) * time.Minute),
			Status:    st,
			Issues:    []string{},
		})
	}
	if err := store.Save(context.Background(), h); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	trigger := &fakeTrigger{}
	return NewServer(store, config.Default(), trigger), trigger
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("/health code = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("缺少 X-Request-ID 响应头")
	}

	w = doRequest(s, http.MethodGet, "/api/version")
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析 /api/version 失败: %v", err)
	}
	if body["version"] == "" || body["go_version"] == "" {
		t.Errorf("version body = %v", body)
	}
}

func TestGetStatus(t *testing.T) {
	s, _ := newTestServer(t, storage.StatusUp, storage.StatusDown)

	w := doRequest(s, http.MethodGet, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Current == nil || resp.Current.Status != storage.StatusDown {
		t.Errorf("Current = %+v, want DOWN", resp.Current)
	}
	if resp.Previous == nil || resp.Previous.Status != storage.StatusUp {
		t.Errorf("Previous = %+v, want UP", resp.Previous)
	}
	if resp.HistoryLen != 2 {
		t.Errorf("HistoryLen = %d, want 2", resp.HistoryLen)
	}
	if resp.Thresholds.MaxAcceptablePing != 150 {
		t.Errorf("Thresholds = %+v", resp.Thresholds)
	}
}

func TestGetStatusEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doRequest(s, http.MethodGet, "/api/status"); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	s, _ := newTestServer(t,
		storage.StatusUp, storage.StatusUp, storage.StatusDegraded, storage.StatusDown, storage.StatusUp)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLen   int
		wantFirst string
	}{
		{"默认", "", http.StatusOK, 5, "snap-0"},
		{"限制条数", "?limit=2", http.StatusOK, 2, "snap-3"},
		{"非法 limit", "?limit=abc", http.StatusBadRequest, 0, ""},
		{"limit 为 0", "?limit=0", http.StatusBadRequest, 0, ""},
		{"limit 超上限", "?limit=201", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "/api/history"+tt.query)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp HistoryResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("解析响应失败: %v", err)
			}
			if len(resp.Entries) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(resp.Entries), tt.wantLen)
			}
			if resp.Entries[0].ID != tt.wantFirst {
				t.Errorf("first = %s, want %s", resp.Entries[0].ID, tt.wantFirst)
			}
			if resp.Total != 5 {
				t.Errorf("Total = %d, want 5", resp.Total)
			}
		})
	}
}

func TestGetHistoryCounts(t *testing.T) {
	s, _ := newTestServer(t, storage.StatusUp, storage.StatusUp, storage.StatusDown)

	w := doRequest(s, http.MethodGet, "/api/history")
	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Counts[storage.StatusUp] != 2 || resp.Counts[storage.StatusDown] != 1 {
		t.Errorf("Counts = %v", resp.Counts)
	}
}

func TestPostTrigger(t *testing.T) {
	s, trigger := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/trigger?force=true")
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202", w.Code)
	}
	if len(trigger.calls) != 1 || !trigger.calls[0] {
		t.Errorf("calls = %v, want [true]", trigger.calls)
	}

	trigger.busy = true
	if w := doRequest(s, http.MethodPost, "/api/trigger"); w.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d, want 429", w.Code)
	}
}

// 只读接口遇到损坏的历史时不改动存储，隔离留给巡检流程
func TestReadEndpointsLeaveCorruptHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewServer(storage.NewFileStorage(path), config.Default(), nil)

	for _, target := range []string{"/api/status", "/api/history"} {
		if w := doRequest(s, http.MethodGet, target); w.Code != http.StatusInternalServerError {
			t.Errorf("%s code = %d, want 500", target, w.Code)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("原文件应保留: %v", err)
	}
	if string(data) != "{broken" {
		t.Errorf("原文件内容被修改: %q", data)
	}
	if _, err := os.Stat(path + ".corrupt"); !os.IsNotExist(err) {
		t.Errorf("只读接口不应生成 .corrupt 文件: %v", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doRequest(s, http.MethodGet, "/api/nope"); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}
