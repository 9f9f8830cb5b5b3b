package daemon

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
)

// Reloader applies a freshly loaded configuration.
type Reloader interface {
	ReloadConfig(cfg *config.Config) error
}

// ConfigWatcher monitors the configuration file and reloads it when its
// bytes change. Saves that leave the content untouched do not rebuild the job.
type ConfigWatcher struct {
	configPath   string
	target       Reloader
	watcher      *fsnotify.Watcher
	stopOnce     sync.Once
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
	load         func(string) (*config.Config, error)

	mu     sync.Mutex
	digest [sha256.Size]byte
}

// NewConfigWatcher creates a new configuration file watcher.
func NewConfigWatcher(configPath string, target Reloader) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to resolve config path").
			WithContext("path", configPath).
			Build()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create file watcher").Build()
	}
	cw := &ConfigWatcher{
		configPath:   absPath,
		target:       target,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
		load:         config.Load,
	}
	if data, err := os.ReadFile(absPath); err == nil {
		cw.digest = sha256.Sum256(data)
	}
	return cw, nil
}

// Start watches the directory holding the config file. Editors commonly
// replace files by rename, which a watch on the file itself would miss.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to watch config directory").
			WithContext("dir", configDir).
			Build()
	}
	slog.Info("Starting configuration watcher", logfields.Path(cw.configPath))

	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		slog.Info("Stopping configuration watcher")
		close(cw.stopChan)
		err = cw.watcher.Close()
	})
	return err
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(cw.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Rename):
				slog.Debug("Config file change detected", logfields.File(event.Name), slog.String("op", event.Op.String()))
				cw.triggerReload()
			case event.Op.Has(fsnotify.Remove):
				slog.Warn("Config file removed", logfields.File(event.Name))
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-cw.stopChan:
			stop()
			return
		case <-cw.reloadChan:
			stop()
			timer = time.AfterFunc(cw.debounceTime, func() {
				if err := cw.performReload(); err != nil {
					slog.Error("Failed to reload configuration", logfields.Error(err))
				}
			})
		}
	}
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case cw.reloadChan <- struct{}{}:
	default:
	}
}

// performReload loads the file and hands it to the target. An invalid file
// leaves the running configuration in place and is retried on the next change.
func (cw *ConfigWatcher) performReload() error {
	data, err := os.ReadFile(cw.configPath)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to read configuration").
			WithContext("path", cw.configPath).
			Build()
	}
	digest := sha256.Sum256(data)

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if digest == cw.digest {
		slog.Debug("Configuration unchanged, skipping reload", logfields.Path(cw.configPath))
		return nil
	}

	slog.Info("Reloading configuration", logfields.Path(cw.configPath))
	cfg, err := cw.load(cw.configPath)
	if err != nil {
		return err
	}
	if err := cw.target.ReloadConfig(cfg); err != nil {
		return err
	}
	cw.digest = digest
	slog.Info("Configuration reloaded successfully")
	return nil
}
