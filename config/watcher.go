package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/isolatorcalc/isolator/logging"
)

// reloadDebounce coalesces the burst of events editors emit for a single save.
const reloadDebounce = 100 * time.Millisecond

// A Watcher is responsible for delivering updates to a config file.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

type fsConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	configCh  chan *Config
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher returns a Watcher that re-reads cfg.ConfigFilePath whenever it changes. Configs that
// fail to read are logged and skipped. A config with no file path gets a watcher that never delivers.
func NewWatcher(ctx context.Context, cfg *Config, logger logging.Logger) (Watcher, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := &fsConfigWatcher{configCh: make(chan *Config), cancel: cancel}
	if cfg.ConfigFilePath == "" {
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, err
	}
	path, err := filepath.Abs(cfg.ConfigFilePath)
	if err != nil {
		cancel()
		return nil, multiCloseErr(err, fsWatcher)
	}
	// Watch the directory so that atomic replace-by-rename saves are seen.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		cancel()
		return nil, multiCloseErr(err, fsWatcher)
	}
	w.fsWatcher = fsWatcher

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.watch(ctx, path, cfg.ConfigFilePath, logger)
	}()
	return w, nil
}

func (w *fsConfigWatcher) watch(ctx context.Context, absPath, origPath string, logger logging.Logger) {
	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("config watcher error", "error", err)
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload = time.After(reloadDebounce)
			}
		case <-reload:
			reload = nil
			newCfg, err := Read(origPath, logger)
			if err != nil {
				logger.Warnw("error reading changed config; keeping previous", "path", origPath, "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case w.configCh <- newCfg:
			}
		}
	}
}

func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configCh
}

func (w *fsConfigWatcher) Close() error {
	w.cancel()
	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	w.wg.Wait()
	return err
}

func multiCloseErr(err error, fsWatcher *fsnotify.Watcher) error {
	if closeErr := fsWatcher.Close(); closeErr != nil {
		return errors.Wrapf(err, "also failed to close watcher: %v", closeErr)
	}
	return err
}
