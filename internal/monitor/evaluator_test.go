package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"accmonitor/internal/config"
	"accmonitor/internal/storage"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func defaultThresholds() config.Thresholds {
	return config.Default().Thresholds
}

func hasIssue(issues []string, substr string) bool {
	for _, s := range issues {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		code       *int
		metrics    Metrics
		wantStatus storage.Status
		wantIssues []string // 子串，按顺序匹配
	}{
		{
			name:       "全部正常",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(50), ServersOnline: intPtr(1500), PlayersOnline: intPtr(8000), DataAgeMinutes: floatPtr(2)},
			wantStatus: storage.StatusUp,
		},
		{
			name:       "指标全部缺失",
			code:       intPtr(1),
			wantStatus: storage.StatusUp,
		},
		{
			name:       "ping 超过上限",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(180), ServersOnline: intPtr(1500)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"ping critical"},
		},
		{
			name:       "ping 警告",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(120), ServersOnline: intPtr(1500)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"ping warning"},
		},
		{
			name:       "服务器数偏低",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(50), ServersOnline: intPtr(900)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"servers count low"},
		},
		{
			name:       "服务器数下降",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(50), ServersOnline: intPtr(1100)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"servers count decreasing"},
		},
		{
			name:       "数据过期",
			code:       intPtr(1),
			metrics:    Metrics{DataAgeMinutes: floatPtr(20)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"data stale"},
		},
		{
			name:       "多个问题按严重在前排序",
			code:       intPtr(1),
			metrics:    Metrics{PingMs: floatPtr(120), ServersOnline: intPtr(500), DataAgeMinutes: floatPtr(30)},
			wantStatus: storage.StatusDegraded,
			wantIssues: []string{"servers count low", "data stale", "ping warning"},
		},
		{
			name:       "离线时忽略指标",
			code:       intPtr(0),
			metrics:    Metrics{PingMs: floatPtr(10), ServersOnline: intPtr(5000), DataAgeMinutes: floatPtr(1)},
			wantStatus: storage.StatusDown,
			wantIssues: []string{"offline"},
		},
		{
			name:       "上游未知",
			code:       intPtr(-1),
			wantStatus: storage.StatusUnknown,
			wantIssues: []string{"unknown"},
		},
		{
			name:       "意外状态码",
			code:       intPtr(7),
			wantStatus: storage.StatusUnknown,
			wantIssues: []string{"unexpected"},
		},
		{
			name:       "状态码缺失",
			code:       nil,
			wantStatus: storage.StatusUnknown,
			wantIssues: []string{"missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, issues := Classify(tt.code, tt.metrics, defaultThresholds())
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if issues == nil {
				t.Fatal("issues 不应为 nil")
			}
			if len(issues) != len(tt.wantIssues) {
				t.Fatalf("issues = %v, want %d 项", issues, len(tt.wantIssues))
			}
			for i, want := range tt.wantIssues {
				if !strings.Contains(issues[i], want) {
					t.Errorf("issues[%d] = %q, want contains %q", i, issues[i], want)
				}
			}
		})
	}
}

// 同时超过严重和警告阈值时只报告严重问题
func TestClassifyHardSuppressesSoft(t *testing.T) {
	_, issues := Classify(intPtr(1), Metrics{PingMs: floatPtr(200), ServersOnline: intPtr(100)}, defaultThresholds())
	if hasIssue(issues, "ping warning") || hasIssue(issues, "decreasing") {
		t.Errorf("严重问题已触发时不应再报告警告: %v", issues)
	}
	if len(issues) != 2 {
		t.Errorf("issues = %v, want 2 项", issues)
	}
}

func TestClassifyDownIgnoresMetrics(t *testing.T) {
	for _, m := range []Metrics{
		{},
		{PingMs: floatPtr(1000), ServersOnline: intPtr(0), DataAgeMinutes: floatPtr(999)},
		{PingMs: floatPtr(5), ServersOnline: intPtr(9999), DataAgeMinutes: floatPtr(0)},
	} {
		if status, _ := Classify(intPtr(0), m, defaultThresholds()); status != storage.StatusDown {
			t.Errorf("code=0 status = %s, want DOWN", status)
		}
	}
}

func newTestEvaluator(url string) *Evaluator {
	cfg := config.Default()
	cfg.StatusAPI.URL = url
	cfg.StatusAPI.TimeoutDuration = 2 * time.Second
	return NewEvaluator(cfg)
}

func TestEvaluatorUp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	headers := make(chan http.Header, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":1,"ping":42,"servers":1500,"players":7000,"date":"2025-03-01T11:57:00Z","down_since":null}`))
	}))
	defer srv.Close()

	e := newTestEvaluator(srv.URL)
	e.now = func() time.Time { return now }

	snap := e.Evaluate(context.Background())
	if snap.Status != storage.StatusUp {
		t.Fatalf("Status = %s, want UP (issues=%v error=%s)", snap.Status, snap.Issues, snap.Error)
	}
	if len(snap.Issues) != 0 {
		t.Errorf("Issues = %v, want empty", snap.Issues)
	}
	if snap.APIStatusCode == nil || *snap.APIStatusCode != 1 {
		t.Errorf("APIStatusCode = %v, want 1", snap.APIStatusCode)
	}
	if snap.ServersOnline == nil || *snap.ServersOnline != 1500 {
		t.Errorf("ServersOnline = %v", snap.ServersOnline)
	}
	if snap.DataAgeMinutes == nil || *snap.DataAgeMinutes != 3 {
		t.Errorf("DataAgeMinutes = %v, want 3", snap.DataAgeMinutes)
	}
	if !snap.Timestamp.Equal(now) || snap.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v", snap.Timestamp)
	}
	if snap.ID == "" {
		t.Error("ID 不应为空")
	}

	gotHeaders := <-headers
	if got := gotHeaders.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if got := gotHeaders.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := gotHeaders.Get("User-Agent"); !strings.HasPrefix(got, "ACC-Monitor/") {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestEvaluatorMissingAndMistypedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":1,"ping":null,"servers":"many"}`))
	}))
	defer srv.Close()

	snap := newTestEvaluator(srv.URL).Evaluate(context.Background())
	if snap.Status != storage.StatusUp {
		t.Fatalf("Status = %s, want UP", snap.Status)
	}
	if snap.PingMs != nil || snap.ServersOnline != nil || snap.PlayersOnline != nil || snap.DataAgeMinutes != nil {
		t.Errorf("缺失或类型不符的字段应保持 nil: %+v", snap)
	}
}

func TestEvaluatorUnparseableDateIsStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":1,"ping":40,"servers":1500,"date":"yesterday"}`))
	}))
	defer srv.Close()

	snap := newTestEvaluator(srv.URL).Evaluate(context.Background())
	if snap.Status != storage.StatusDegraded {
		t.Fatalf("Status = %s, want DEGRADED", snap.Status)
	}
	if !hasIssue(snap.Issues, "data stale") {
		t.Errorf("Issues = %v, want data stale", snap.Issues)
	}
}

func TestEvaluatorDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"ping":30,"servers":2000,"players":10}`))
	}))
	defer srv.Close()

	snap := newTestEvaluator(srv.URL).Evaluate(context.Background())
	if snap.Status != storage.StatusDown {
		t.Fatalf("Status = %s, want DOWN", snap.Status)
	}
}

func TestEvaluatorAPIError(t *testing.T) {
	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer garbage.Close()

	bodyServer := func(body string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv
	}
	null := bodyServer("null")
	array := bodyServer(`[{"status":1}]`)
	empty := bodyServer("  ")

	tests := []struct {
		name    string
		url     string
		timeout time.Duration
		reason  string
	}{
		{"连接被拒绝", closedURL, 2 * time.Second, "连接失败"},
		{"超时", slow.URL, 50 * time.Millisecond, "超时"},
		{"HTTP 503", unavailable.URL, 2 * time.Second, "HTTP 503"},
		{"非 JSON", garbage.URL, 2 * time.Second, "JSON"},
		{"JSON null", null.URL, 2 * time.Second, "JSON 对象"},
		{"JSON 数组", array.URL, 2 * time.Second, "JSON 对象"},
		{"空响应体", empty.URL, 2 * time.Second, "JSON 对象"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvaluator(tt.url)
			e.api.TimeoutDuration = tt.timeout

			snap := e.Evaluate(context.Background())
			if snap.Status != storage.StatusAPIError {
				t.Fatalf("Status = %s, want API_ERROR", snap.Status)
			}
			if len(snap.Issues) == 0 || !hasIssue(snap.Issues, "API unreachable") {
				t.Errorf("Issues = %v, want unreachable entry", snap.Issues)
			}
			if !strings.Contains(snap.Error, tt.reason) {
				t.Errorf("Error = %q, want contains %q", snap.Error, tt.reason)
			}
			if snap.APIStatusCode != nil {
				t.Errorf("APIStatusCode = %v, want nil", *snap.APIStatusCode)
			}
		})
	}
}
