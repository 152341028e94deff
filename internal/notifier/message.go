// Package notifier 构建并发送 Webhook 通知（Discord embed 格式）
package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"accmonitor/internal/config"
	"accmonitor/internal/storage"
)

// 通知中最多列出的问题条数
const maxIssuesInMessage = 5

// 各状态的 embed 颜色
const (
	ColorGreen  = 0x28A745
	ColorOrange = 0xFD7E14
	ColorRed    = 0xDC3545
	ColorGrey   = 0x6C757D
)

// Message Webhook 请求体
type Message struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []Embed `json:"embeds"`
}

// Embed 富文本消息
type Embed struct {
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	Color     int     `json:"color"`
	Timestamp string  `json:"timestamp,omitempty"`
	Fields    []Field `json:"fields"`
	Footer    *Footer `json:"footer,omitempty"`
}

// Field embed 字段
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Footer embed 页脚
type Footer struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type statusStyle struct {
	title string
	color int
}

var statusStyles = map[storage.Status]statusStyle{
	storage.StatusUp:       {"🟢 ACC SERVERS ONLINE", ColorGreen},
	storage.StatusDegraded: {"🟠 ACC SERVERS DEGRADED", ColorOrange},
	storage.StatusDown:     {"🔴 ACC SERVERS OFFLINE", ColorRed},
	storage.StatusAPIError: {"⚠️ ACC STATUS API UNREACHABLE", ColorRed},
	storage.StatusUnknown:  {"❓ ACC SERVERS UNKNOWN", ColorGrey},
}

// BuildMessage 由巡检结果生成通知
// offline 为当前连续离线时长，只在 DOWN 时展示
func BuildMessage(snap *storage.Snapshot, offline time.Duration, cfg *config.Config) *Message {
	style, ok := statusStyles[snap.Status]
	if !ok {
		style = statusStyles[storage.StatusUnknown]
	}
	t := cfg.Thresholds

	embed := Embed{
		Title:     style.title,
		URL:       cfg.StatusAPI.StatusURL,
		Color:     style.color,
		Timestamp: snap.Timestamp.UTC().Format(time.RFC3339),
		Fields: []Field{
			{Name: "📊 State Detected", Value: "`" + string(snap.Status) + "`", Inline: true},
			{Name: "🤖 API Status", Value: apiCodeText(snap.APIStatusCode), Inline: true},
			{Name: "📅 Last Update", Value: snap.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"), Inline: true},
		},
		Footer: &Footer{
			Text:    "ACC Status Monitor • Data source: acc-status.jonatan.net",
			IconURL: cfg.Webhook.FooterIcon,
		},
	}

	if snap.PingMs != nil {
		ping := *snap.PingMs
		embed.Fields = append(embed.Fields, Field{
			Name:   light(ping <= t.WarningPing, ping <= t.MaxAcceptablePing) + " Ping",
			Value:  fmt.Sprintf("`%s ms`", humanize.FormatFloat("#,###.#", ping)),
			Inline: true,
		})
	}
	if snap.ServersOnline != nil {
		servers := *snap.ServersOnline
		embed.Fields = append(embed.Fields, Field{
			Name:   light(servers >= t.WarningServers, servers >= t.MinServersExpected) + " Servers Online",
			Value:  "`" + humanize.Comma(int64(servers)) + "`",
			Inline: true,
		})
	}
	if snap.PlayersOnline != nil {
		embed.Fields = append(embed.Fields, Field{
			Name:   "👥 Players Online",
			Value:  "`" + humanize.Comma(int64(*snap.PlayersOnline)) + "`",
			Inline: true,
		})
	}
	if snap.DataAgeMinutes != nil {
		age := *snap.DataAgeMinutes
		fresh := age <= t.MaxDataAgeMinutes
		embed.Fields = append(embed.Fields, Field{
			Name:   light(fresh, fresh) + " Data Age",
			Value:  fmt.Sprintf("`%.1f minutes ago`", age),
			Inline: true,
		})
	}

	embed.Fields = append(embed.Fields, Field{
		Name:   "⏱️ API Response Time",
		Value:  fmt.Sprintf("`%.2fs`", float64(snap.ResponseTimeMs)/1000),
		Inline: true,
	})

	if snap.Status == storage.StatusDown {
		embed.Fields = append(embed.Fields, Field{
			Name:   "⏳ Duration Offline",
			Value:  "`" + formatOffline(offline) + "`",
			Inline: true,
		})
	}

	if len(snap.Issues) > 0 {
		embed.Fields = append(embed.Fields, Field{
			Name:   "⚠️ Issues Detected",
			Value:  "```\n" + issuesText(snap.Issues) + "```",
			Inline: false,
		})
	}

	return &Message{
		Username:  cfg.Webhook.Username,
		AvatarURL: cfg.Webhook.AvatarURL,
		Embeds:    []Embed{embed},
	}
}

func apiCodeText(code *int) string {
	if code == nil {
		return "`n/a` (ERROR)"
	}
	label := "UNKNOWN"
	switch *code {
	case 1:
		label = "UP"
	case 0:
		label = "DOWN"
	}
	return fmt.Sprintf("`%d` (%s)", *code, label)
}

// light 红绿灯：good → 🟢，acceptable → 🟡，否则 🔴
func light(good, acceptable bool) string {
	switch {
	case good:
		return "🟢"
	case acceptable:
		return "🟡"
	default:
		return "🔴"
	}
}

func formatOffline(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dmin", hours, minutes)
}

func issuesText(issues []string) string {
	n := len(issues)
	if n > maxIssuesInMessage {
		n = maxIssuesInMessage
	}

	var b strings.Builder
	for _, issue := range issues[:n] {
		b.WriteString("• ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	if rest := len(issues) - n; rest > 0 {
		fmt.Fprintf(&b, "… +%d more\n", rest)
	}
	return b.String()
}
