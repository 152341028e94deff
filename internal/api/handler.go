package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"accmonitor/internal/config"
	"accmonitor/internal/logger"
	"accmonitor/internal/storage"
)

const defaultHistoryLimit = 50

// Trigger 即时巡检入口（由调度器实现）
type Trigger interface {
	TriggerNow(force bool) bool
}

// Handler API处理器
type Handler struct {
	storage storage.Storage
	trigger Trigger
	config  *config.Config
	cfgMu   sync.RWMutex // 保护config的并发访问
}

// NewHandler 创建处理器
func NewHandler(store storage.Storage, cfg *config.Config, trigger Trigger) *Handler {
	return &Handler{
		storage: store,
		trigger: trigger,
		config:  cfg,
	}
}

// StatusResponse /api/status 返回结构
type StatusResponse struct {
	Current    *storage.Snapshot `json:"current"`
	Previous   *storage.Snapshot `json:"previous,omitempty"`
	Thresholds config.Thresholds `json:"thresholds"`
	HistoryLen int               `json:"history_len"`
}

// HistoryResponse /api/history 返回结构
type HistoryResponse struct {
	Entries []*storage.Snapshot    `json:"entries"`
	Total   int                    `json:"total"`
	Counts  map[storage.Status]int `json:"counts"` // 返回区间内各状态的次数
}

func (h *Handler) loadHistory(c *gin.Context) (*storage.History, bool) {
	history, err := h.storage.Load(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context(), "api").Error("读取历史失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取历史失败"})
		return nil, false
	}
	return history, true
}

// GetStatus 最近一次巡检结果
func (h *Handler) GetStatus(c *gin.Context) {
	history, ok := h.loadHistory(c)
	if !ok {
		return
	}

	latest := history.Latest()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "暂无巡检记录"})
		return
	}

	resp := StatusResponse{
		Current:    latest,
		Thresholds: h.currentConfig().Thresholds,
		HistoryLen: history.Len(),
	}
	if tail := history.Tail(2); len(tail) == 2 {
		resp.Previous = tail[0]
	}

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, resp)
}

// GetHistory 最近 limit 条记录（最旧在前）
func (h *Handler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > storage.MaxHistoryEntries {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit 必须是 1-" + strconv.Itoa(storage.MaxHistoryEntries) + " 之间的整数",
			})
			return
		}
		limit = n
	}

	history, ok := h.loadHistory(c)
	if !ok {
		return
	}

	entries := history.Tail(limit)
	counts := make(map[storage.Status]int)
	for _, e := range entries {
		counts[e.Status]++
	}

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, HistoryResponse{
		Entries: entries,
		Total:   history.Len(),
		Counts:  counts,
	})
}

// PostTrigger 触发一次即时巡检（异步执行）
func (h *Handler) PostTrigger(c *gin.Context) {
	force := config.ParseBool(c.Query("force"))
	if !h.trigger.TriggerNow(force) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "已有待执行的巡检"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered", "force": force})
}

// UpdateConfig 更新配置（热更新时调用）
func (h *Handler) UpdateConfig(cfg *config.Config) {
	h.cfgMu.Lock()
	h.config = cfg
	h.cfgMu.Unlock()
}

func (h *Handler) currentConfig() *config.Config {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.config
}
