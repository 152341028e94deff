package monitor

import (
	"io"
	"net/http"
	"time"
)

// maxBodyBytes 上游响应体上限，状态文档通常只有几百字节
const maxBodyBytes = 1 << 20

// newHTTPClient 创建上游请求使用的客户端
// 注意：不设置 Timeout，由 Evaluate 使用 context.WithTimeout 控制每个请求的超时
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// drainAndClose 读完并关闭响应体，便于连接复用
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
