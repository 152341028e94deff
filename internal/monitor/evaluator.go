// Package monitor 拉取 ACC 状态 API 并派生服务状态
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"accmonitor/internal/buildinfo"
	"accmonitor/internal/config"
	"accmonitor/internal/logger"
	"accmonitor/internal/storage"
)

// staleDataAgeMinutes 上游 date 字段无法解析时按过期数据处理
const staleDataAgeMinutes = 999

// Evaluator 状态评估器：一次请求产出一个 Snapshot
type Evaluator struct {
	client     *http.Client
	api        config.StatusAPIConfig
	thresholds config.Thresholds
	now        func() time.Time
}

// NewEvaluator 创建评估器（配置在创建时复制，运行期间只读）
func NewEvaluator(cfg *config.Config) *Evaluator {
	return &Evaluator{
		client:     newHTTPClient(),
		api:        cfg.StatusAPI,
		thresholds: cfg.Thresholds,
		now:        time.Now,
	}
}

// statusDocument 上游状态文档，字段按原始 JSON 读取后逐个宽松解析
type statusDocument struct {
	Status    json.RawMessage `json:"status"`
	Ping      json.RawMessage `json:"ping"`
	Servers   json.RawMessage `json:"servers"`
	Players   json.RawMessage `json:"players"`
	Date      json.RawMessage `json:"date"`
	DownSince json.RawMessage `json:"down_since"`
}

// Evaluate 执行一次评估，不重试
// 任何失败（网络、超时、非 2xx、无法解析）都转为 API_ERROR，不返回 error
func (e *Evaluator) Evaluate(ctx context.Context) *storage.Snapshot {
	log := logger.FromContext(ctx, "monitor")

	snap := &storage.Snapshot{
		ID:        uuid.NewString(),
		Timestamp: e.now().UTC(),
		Issues:    []string{},
	}

	timeout := e.api.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("请求状态 API", "url", e.api.URL)

	start := time.Now()
	body, err := e.fetch(ctx, timeout)
	snap.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		return e.apiError(ctx, snap, err)
	}

	// null、数组、字符串等都能被 Unmarshal 接受，先确认是对象
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return e.apiError(ctx, snap, errors.New("响应不是有效的 JSON 对象"))
	}

	var doc statusDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return e.apiError(ctx, snap, fmt.Errorf("响应不是有效的 JSON 对象: %w", err))
	}

	snap.APIStatusCode = rawInt(doc.Status)
	metrics := Metrics{
		PingMs:         rawFloat(doc.Ping),
		ServersOnline:  rawInt(doc.Servers),
		PlayersOnline:  rawInt(doc.Players),
		DataAgeMinutes: dataAgeMinutes(doc.Date, snap.Timestamp),
	}
	snap.PingMs = metrics.PingMs
	snap.ServersOnline = metrics.ServersOnline
	snap.PlayersOnline = metrics.PlayersOnline
	snap.DataAgeMinutes = metrics.DataAgeMinutes

	snap.Status, snap.Issues = Classify(snap.APIStatusCode, metrics, e.thresholds)

	log.Info("状态评估完成",
		"status", snap.Status,
		"api_code", derefInt(snap.APIStatusCode),
		"ping_ms", derefFloat(snap.PingMs),
		"servers", derefInt(snap.ServersOnline),
		"players", derefInt(snap.PlayersOnline),
		"data_age_min", derefFloat(snap.DataAgeMinutes),
		"response_ms", snap.ResponseTimeMs,
		"issues", len(snap.Issues))
	if ds := rawString(doc.DownSince); ds != "" {
		log.Debug("上游报告离线起点", "down_since", ds)
	}

	return snap
}

// fetch 发送 GET 请求并读取响应体
func (e *Evaluator) fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.api.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	userAgent := e.api.UserAgent
	if userAgent == "" {
		userAgent = buildinfo.UserAgent()
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := e.client.Do(req)
	if err != nil {
		// 极少数情况下 err != nil 但 resp != nil
		drainAndClose(resp)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("请求超时(%v)", timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("请求取消: %w", err)
		}
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d - %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, nil
}

func (e *Evaluator) apiError(ctx context.Context, snap *storage.Snapshot, err error) *storage.Snapshot {
	snap.Status = storage.StatusAPIError
	snap.Error = err.Error()
	snap.Issues = []string{unreachableIssue(err.Error())}

	logger.FromContext(ctx, "monitor").Warn("状态 API 不可用",
		"url", e.api.URL, "response_ms", snap.ResponseTimeMs, "error", err)
	return snap
}

// dataAgeMinutes 由上游 date 字段计算数据年龄（分钟，保留一位小数）
// 字段缺失返回 nil；无法解析时按过期数据处理
func dataAgeMinutes(raw json.RawMessage, now time.Time) *float64 {
	if isNull(raw) {
		return nil
	}
	s := rawString(raw)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		age := float64(staleDataAgeMinutes)
		return &age
	}
	age := now.Sub(t).Minutes()
	if age < 0 {
		// 时钟偏差
		age = 0
	}
	age = math.Round(age*10) / 10
	return &age
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// rawFloat 数值字段（类型不符视为缺失）
func rawFloat(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// rawInt 整数字段（非整数视为缺失）
func rawInt(raw json.RawMessage) *int {
	f := rawFloat(raw)
	if f == nil || *f != math.Trunc(*f) || math.IsInf(*f, 0) {
		return nil
	}
	v := int(*f)
	return &v
}

func rawString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
