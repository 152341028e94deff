package monitor

import (
	"fmt"
	"strconv"

	"accmonitor/internal/config"
	"accmonitor/internal/storage"
)

// 上游状态码
const (
	APICodeUp      = 1
	APICodeDown    = 0
	APICodeUnknown = -1
)

// Metrics 上游返回的可选指标（缺失为 nil，不补 0）
type Metrics struct {
	PingMs         *float64
	ServersOnline  *int
	PlayersOnline  *int
	DataAgeMinutes *float64
}

// Classify 根据上游状态码和阈值派生状态
//
// 优先级（先匹配先返回）：
//   - code == 0 → DOWN
//   - code == -1 → UNKNOWN
//   - code == 1 → 逐项检查阈值，有任何问题为 DEGRADED，否则 UP
//   - 其他或缺失 → UNKNOWN
//
// 请求失败的情况由 Evaluator 直接产出 API_ERROR，不经过这里。
func Classify(code *int, m Metrics, t config.Thresholds) (storage.Status, []string) {
	issues := []string{}

	if code == nil {
		return storage.StatusUnknown, append(issues, "ACC servers status missing (API)")
	}

	switch *code {
	case APICodeDown:
		return storage.StatusDown, append(issues, "ACC servers offline (API)")
	case APICodeUnknown:
		return storage.StatusUnknown, append(issues, "ACC servers status unknown (API)")
	case APICodeUp:
		// 继续检查阈值
	default:
		return storage.StatusUnknown, append(issues, fmt.Sprintf("ACC servers status unexpected (API code %d)", *code))
	}

	issues = thresholdIssues(m, t)
	if len(issues) > 0 {
		return storage.StatusDegraded, issues
	}
	return storage.StatusUp, issues
}

// thresholdIssues 先检查严重阈值，对应的严重问题未触发时才检查警告阈值
func thresholdIssues(m Metrics, t config.Thresholds) []string {
	issues := []string{}

	pingHard := m.PingMs != nil && *m.PingMs > t.MaxAcceptablePing
	serversHard := m.ServersOnline != nil && *m.ServersOnline < t.MinServersExpected

	if pingHard {
		issues = append(issues, fmt.Sprintf("ACC ping critical: %sms (> %sms)",
			formatNumber(*m.PingMs), formatNumber(t.MaxAcceptablePing)))
	}
	if serversHard {
		issues = append(issues, fmt.Sprintf("ACC servers count low: %d (< %d)",
			*m.ServersOnline, t.MinServersExpected))
	}
	if m.DataAgeMinutes != nil && *m.DataAgeMinutes > t.MaxDataAgeMinutes {
		issues = append(issues, fmt.Sprintf("ACC data stale: %.1f minutes (> %s minutes)",
			*m.DataAgeMinutes, formatNumber(t.MaxDataAgeMinutes)))
	}

	if !pingHard && m.PingMs != nil && *m.PingMs > t.WarningPing {
		issues = append(issues, fmt.Sprintf("ACC ping warning: %sms (> %sms)",
			formatNumber(*m.PingMs), formatNumber(t.WarningPing)))
	}
	if !serversHard && m.ServersOnline != nil && *m.ServersOnline < t.WarningServers {
		issues = append(issues, fmt.Sprintf("ACC servers count decreasing: %d (< %d)",
			*m.ServersOnline, t.WarningServers))
	}

	return issues
}

// unreachableIssue API_ERROR 的问题描述
func unreachableIssue(reason string) string {
	return "API unreachable: " + reason
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
