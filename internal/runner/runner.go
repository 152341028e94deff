// Package runner 串联一次完整巡检：读取历史 → 评估 → 判定 → 通知 → 追加 → 保存
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"accmonitor/internal/config"
	"accmonitor/internal/events"
	"accmonitor/internal/logger"
	"accmonitor/internal/monitor"
	"accmonitor/internal/notifier"
	"accmonitor/internal/storage"
)

// Result 一次巡检的结果
type Result struct {
	RunID    string
	Snapshot *storage.Snapshot
	Previous *storage.Snapshot
	Decision events.Decision

	// Notified 通知已成功送达
	Notified bool
	// NotifyErr 通知发送失败（已记录日志，不影响历史保存）
	NotifyErr error
	// SetupErr 需要发送通知但缺少必要配置（历史仍会保存）
	SetupErr error
	// HistoryCorrupt 本次读取时历史已损坏，按空历史处理
	HistoryCorrupt bool

	HistoryLen int
}

// Runner 巡检执行器，同一时刻只执行一次巡检
type Runner struct {
	mu        sync.Mutex
	cfg       *config.Config
	store     storage.Storage
	evaluator *monitor.Evaluator
	gate      *events.Gate
	webhook   *notifier.WebhookClient
}

// New 创建执行器
func New(cfg *config.Config, store storage.Storage) *Runner {
	r := &Runner{
		store: store,
		gate:  events.NewGate(),
	}
	r.applyConfig(cfg)
	return r
}

func (r *Runner) applyConfig(cfg *config.Config) {
	r.cfg = cfg
	r.evaluator = monitor.NewEvaluator(cfg)
	r.webhook = notifier.NewWebhookClient(&cfg.Webhook)
}

// UpdateConfig 热更新配置（下一次巡检生效；存储后端不随之切换）
func (r *Runner) UpdateConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyConfig(cfg)
}

// RunOnce 执行一次巡检
//
// force 只作用于本次巡检；FORCE_NOTIFICATION 由调用方折算进 force。
// 上游不可达、历史损坏、通知发送失败都在各自边界处理，不返回 error；
// 只有历史无法读取（非损坏）或无法保存时返回 error。
func (r *Runner) RunOnce(ctx context.Context, force bool) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &Result{RunID: uuid.NewString()}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := logger.FromContext(ctx, "runner")
	cfg := r.cfg

	start := time.Now()
	log.Info("开始巡检", "force", force)

	history, err := r.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptHistory) {
			return res, fmt.Errorf("读取历史失败: %w", err)
		}
		log.Warn("历史记录已损坏，按空历史继续", "error", err)
		res.HistoryCorrupt = true
		if q, ok := r.store.(storage.Quarantiner); ok {
			if qErr := q.Quarantine(ctx); qErr != nil {
				log.Warn("隔离损坏的历史失败", "error", qErr)
			}
		}
		history = storage.NewHistory(nil)
	}
	res.Previous = history.Latest()

	snap := r.evaluator.Evaluate(ctx)
	res.Snapshot = snap

	res.Decision = r.gate.Decide(res.Previous, snap, force)
	if res.Decision.Notify {
		log.Info("需要发送通知",
			"reason", res.Decision.Reason, "from", res.Decision.From, "to", res.Decision.To)
		r.notify(ctx, res, history, cfg)
	} else {
		log.Info("状态无显著变化，跳过通知", "status", snap.Status)
	}

	history.Append(snap)
	if err := r.store.Save(ctx, history); err != nil {
		return res, fmt.Errorf("保存历史失败: %w", err)
	}
	res.HistoryLen = history.Len()

	log.Info("巡检完成",
		"status", snap.Status,
		"notified", res.Notified,
		"history", res.HistoryLen,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// notify 构建并发送通知，失败只记录到 res
func (r *Runner) notify(ctx context.Context, res *Result, history *storage.History, cfg *config.Config) {
	log := logger.FromContext(ctx, "runner")
	snap := res.Snapshot

	var offline time.Duration
	if since, ok := events.OfflineSince(history.Entries(), snap); ok {
		offline = snap.Timestamp.Sub(since)
	}

	msg := notifier.BuildMessage(snap, offline, cfg)
	err := r.webhook.Send(ctx, msg)
	switch {
	case err == nil:
		res.Notified = true
	case errors.Is(err, notifier.ErrWebhookNotConfigured):
		res.SetupErr = err
		log.Error("无法发送通知：Webhook 地址缺失或无效（设置 DISCORD_WEBHOOK_URL 或 webhook.url）", "error", err)
	default:
		res.NotifyErr = err
		log.Warn("通知发送失败，继续保存历史", "error", err)
	}
}
