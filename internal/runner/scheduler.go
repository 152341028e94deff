package runner

import (
	"context"
	"sync"
	"time"

	"accmonitor/internal/config"
	"accmonitor/internal/logger"
)

// Scheduler 常驻模式调度器
//
// 巡检时间对齐到上游刷新节奏：每个 interval 边界之后再等 offset，
// 避开上游刚刷新时的缓存。巡检由 Runner 串行执行，不会重叠。
type Scheduler struct {
	runner *Runner

	mu       sync.Mutex
	interval time.Duration
	offset   time.Duration

	initialForce bool // 仅作用于启动时的第一次巡检

	wakeCh    chan struct{} // 配置变更，重新计算下次执行时间
	triggerCh chan bool     // 立即巡检（值为 force）
}

// NewScheduler 创建调度器
func NewScheduler(r *Runner, interval, offset time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:    r,
		interval:  interval,
		offset:    offset,
		wakeCh:    make(chan struct{}, 1),
		triggerCh: make(chan bool, 1),
	}
}

// WithInitialForce 启动时的第一次巡检强制发送通知（-force / FORCE_NOTIFICATION）
func (s *Scheduler) WithInitialForce(force bool) *Scheduler {
	s.initialForce = force
	return s
}

// NextRun 计算 now 之后的下一个对齐时间点
func NextRun(now time.Time, interval, offset time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	offset %= interval
	next := now.Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

// UpdateConfig 热更新配置（热更新回调中调用）
func (s *Scheduler) UpdateConfig(cfg *config.Config) {
	s.runner.UpdateConfig(cfg)

	interval := cfg.Daemon.IntervalDuration
	if interval <= 0 {
		interval = cfg.StatusAPI.UpdateIntervalDuration
	}

	s.mu.Lock()
	if interval > 0 {
		s.interval = interval
	}
	s.offset = cfg.StatusAPI.DelayOffsetDuration
	s.mu.Unlock()

	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
	logger.Info("scheduler", "配置已更新", "interval", interval, "offset", cfg.StatusAPI.DelayOffsetDuration)
}

// TriggerNow 立即执行一次巡检
// 已有待执行的触发时忽略本次
func (s *Scheduler) TriggerNow(force bool) bool {
	select {
	case s.triggerCh <- force:
		logger.Info("scheduler", "已触发即时巡检", "force", force)
		return true
	default:
		return false
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NextRun(now, s.interval, s.offset)
}

// Run 调度主循环，启动时先执行一次，ctx 取消后返回
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info("scheduler", "调度器已启动")
	s.runCycle(ctx, s.initialForce)

	next := s.nextRun(time.Now())
	for {
		logger.Debug("scheduler", "等待下一次巡检", "next_run", next.Format(time.RFC3339))
		timer := time.NewTimer(max(time.Until(next), 0))

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("scheduler", "调度器已停止")
			return nil

		case <-s.wakeCh:
			timer.Stop()
			next = s.nextRun(time.Now())
			continue

		case force := <-s.triggerCh:
			timer.Stop()
			s.runCycle(ctx, force)

		case <-timer.C:
			s.runCycle(ctx, false)
		}

		next = s.nextRun(time.Now())
	}
}

func (s *Scheduler) runCycle(ctx context.Context, force bool) {
	res, err := s.runner.RunOnce(ctx, force)
	if err != nil {
		logger.Error("scheduler", "巡检失败", "error", err)
		return
	}
	if res.SetupErr != nil {
		logger.Warn("scheduler", "巡检完成但通知未发送", "run_id", res.RunID, "error", res.SetupErr)
	}
}
