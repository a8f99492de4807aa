package conf

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch reloads path on every write and hands the result to onReload.
// Reload errors are logged and the previous config stays in effect.
// Watching the parent directory survives the rename dance editors and
// config-management tools do on save.
func Watch(path string, logger *zap.Logger, onReload func(*Bootstrap)) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				bc, err := Load(abs)
				if err != nil {
					logger.Warn("config reload failed", zap.String("path", abs), zap.Error(err))
					continue
				}
				logger.Info("config reloaded", zap.String("path", abs))
				onReload(bc)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", zap.Error(err))
			}
		}
	}()
	return w, nil
}

func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
