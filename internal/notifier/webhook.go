package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accmonitor/internal/buildinfo"
	"accmonitor/internal/config"
	"accmonitor/internal/logger"
)

// ErrWebhookNotConfigured 需要发送通知但 Webhook 地址缺失或无效
var ErrWebhookNotConfigured = errors.New("未配置有效的 Webhook 地址")

// WebhookClient Webhook 发送客户端
type WebhookClient struct {
	url        string
	urlErr     error // 地址无效时记录，发送时返回
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookClient 创建 Webhook 客户端
func NewWebhookClient(cfg *config.WebhookConfig) *WebhookClient {
	timeout := cfg.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var urlErr error
	if err := cfg.Validate(); err != nil {
		urlErr = fmt.Errorf("%w: %v", ErrWebhookNotConfigured, err)
	}
	return &WebhookClient{
		url:     strings.TrimSpace(cfg.URL),
		urlErr:  urlErr,
		token:   strings.TrimSpace(cfg.Token),
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Configured 是否配置了有效的 Webhook 地址
func (c *WebhookClient) Configured() bool {
	return c.url != "" && c.urlErr == nil
}

// Send 发送一条通知（单次 POST，不重试）
// 2xx 视为成功
func (c *WebhookClient) Send(ctx context.Context, msg *Message) error {
	if c.urlErr != nil {
		return c.urlErr
	}
	if c.url == "" {
		return ErrWebhookNotConfigured
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("发送通知超时(%v): %w", c.timeout, err)
		}
		return fmt.Errorf("发送通知失败: %w", err)
	}
	defer resp.Body.Close()

	// 错误时保留少量响应内容便于排查
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook 返回 HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	logger.FromContext(ctx, "notifier").Info("通知已发送",
		"http_code", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
	return nil
}
