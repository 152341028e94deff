package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"accmonitor/internal/api"
	"accmonitor/internal/buildinfo"
	"accmonitor/internal/config"
	"accmonitor/internal/logger"
	"accmonitor/internal/runner"
	"accmonitor/internal/storage"
)

const (
	exitOK    = 0
	exitError = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "config.yaml", "配置文件路径（不存在时使用默认值和环境变量）")
	forceFlag := flag.Bool("force", false, "强制发送通知（等同 FORCE_NOTIFICATION=true；常驻模式只作用于第一次巡检）")
	daemon := flag.Bool("daemon", false, "常驻模式：按上游刷新节奏循环巡检，并提供只读 HTTP API")
	addr := flag.String("addr", "", "常驻模式 HTTP 监听地址（覆盖 daemon.addr）")
	verbose := flag.Bool("v", false, "输出调试日志")
	showVersion := flag.Bool("version", false, "打印版本信息后退出")
	flag.Parse()

	if *showVersion {
		fmt.Printf("acc-monitor %s (commit %s, built %s, %s)\n",
			buildinfo.GetVersion(), buildinfo.GetGitCommit(), buildinfo.GetBuildTime(), buildinfo.GetGoVersion())
		return exitOK
	}

	logger.SetVerbose(*verbose)
	logger.Info("main", "ACC Status Monitor 启动",
		"version", buildinfo.GetVersion(),
		"git_commit", buildinfo.GetGitCommit(),
		"build_time", buildinfo.GetBuildTime())

	// .env 放在配置文件旁边，不覆盖已存在的环境变量
	if err := config.LoadDotenvFromConfigDir(*configFile); err != nil {
		logger.Warn("main", "加载 .env 失败", "error", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configFile)
	if err != nil {
		logger.Error("main", "无法加载配置", "file", *configFile, "error", err)
		return exitError
	}
	if *addr != "" {
		cfg.Daemon.Addr = *addr
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn("main", "配置警告", "detail", warning)
	}
	force := *forceFlag || cfg.ForceNotification
	logger.Info("main", "配置加载完成",
		"status_api", cfg.StatusAPI.URL,
		"timeout", cfg.StatusAPI.TimeoutDuration,
		"storage", cfg.Storage.Type,
		"webhook", cfg.HasWebhook(),
		"force", force)

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		logger.Error("main", "初始化存储失败", "error", err)
		return exitError
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Init(ctx); err != nil {
		logger.Error("main", "初始化存储失败", "error", err)
		return exitError
	}

	r := runner.New(cfg, store)

	if *daemon {
		if err := runDaemon(ctx, loader, *configFile, *addr, force, cfg, store, r); err != nil {
			logger.Error("main", "常驻模式异常退出", "error", err)
			return exitError
		}
		return exitOK
	}

	res, err := r.RunOnce(ctx, force)
	if err != nil {
		logger.Error("main", "巡检失败", "error", err)
		return exitError
	}
	if res.SetupErr != nil {
		logger.Error("main", "需要发送通知但缺少配置", "status", res.Snapshot.Status, "error", res.SetupErr)
		return exitError
	}
	return exitOK
}

// runDaemon 并行运行调度器、HTTP API 和配置监听，任一失败或收到信号时全部退出
func runDaemon(ctx context.Context, loader *config.Loader, configFile, addrOverride string, force bool,
	cfg *config.Config, store storage.Storage, r *runner.Runner) error {
	sched := runner.NewScheduler(r, cfg.Daemon.IntervalDuration, cfg.StatusAPI.DelayOffsetDuration).
		WithInitialForce(force)
	server := api.NewServer(store, cfg, sched)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	watcher, err := config.NewWatcher(loader, configFile, func(newCfg *config.Config) {
		if addrOverride != "" {
			newCfg.Daemon.Addr = addrOverride
		}
		if newCfg.Storage.Type != cfg.Storage.Type {
			logger.Warn("main", "存储类型变更需要重启才能生效",
				"current", cfg.Storage.Type, "configured", newCfg.Storage.Type)
		}
		sched.UpdateConfig(newCfg)
		server.UpdateConfig(newCfg)
	})
	if err != nil {
		logger.Warn("main", "配置监听器创建失败，热更新功能不可用", "error", err)
	} else {
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				// 热更新失败不影响巡检
				logger.Warn("main", "配置监听器退出，热更新功能不可用", "error", err)
			}
			return nil
		})
	}

	logger.Info("main", "常驻模式已启动",
		"interval", cfg.Daemon.IntervalDuration,
		"offset", cfg.StatusAPI.DelayOffsetDuration,
		"addr", cfg.Daemon.Addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("main", "已退出")
	return nil
}
