package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"accmonitor/internal/logger"
)

// Watcher 配置文件监听器（仅常驻模式使用）
type Watcher struct {
	loader       *Loader
	filename     string
	watcher      *fsnotify.Watcher
	onReload     func(*Config)
	debounceTime time.Duration
	watchMu      sync.Mutex
	watchedDirs  map[string]struct{}
}

// NewWatcher 创建配置监听器
func NewWatcher(loader *Loader, filename string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		loader:       loader,
		filename:     filename,
		watcher:      watcher,
		onReload:     onReload,
		debounceTime: 200 * time.Millisecond,
	}, nil
}

// Run 监听配置文件变更直到 ctx 结束
// 监听父目录而非文件本身，避免编辑器 rename 保存导致监听失效
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	dir := filepath.Dir(w.filename)
	targetFile := filepath.Clean(w.filename)
	if err := w.addWatch(dir); err != nil {
		return err
	}

	logger.Info("config", "开始监听配置文件", "file", w.filename, "dir", dir)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("config", "配置监听器已停止")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != targetFile {
				continue
			}

			// vim/nano 等编辑器使用 rename 保存
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceTime, func() {
					logger.Info("config", "检测到配置文件变更，正在重载")
					w.reload()
				})
			}

			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := w.addWatch(filepath.Dir(targetFile)); err != nil {
					logger.Error("config", "重新监听目录失败", "error", err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config", "监听错误", "error", err)
		}
	}
}

// reload 重新加载配置，失败时保留旧配置
func (w *Watcher) reload() {
	newConfig, err := w.loader.LoadOrRollback(w.filename)
	if err != nil {
		logger.Error("config", "重载失败", "error", err)
		return
	}

	for _, warning := range newConfig.Warnings() {
		logger.Warn("config", "阈值配置矛盾", "detail", warning)
	}
	logger.Info("config", "热更新成功", "storage", newConfig.Storage.Type)

	if w.onReload != nil {
		w.onReload(newConfig)
	}
}

// addWatch 为目录添加监听（自动去重）
func (w *Watcher) addWatch(dir string) error {
	dir = filepath.Clean(dir)

	w.watchMu.Lock()
	defer w.watchMu.Unlock()
	if w.watchedDirs == nil {
		w.watchedDirs = make(map[string]struct{})
	}
	if _, exists := w.watchedDirs[dir]; exists {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.watchedDirs[dir] = struct{}{}
	return nil
}
