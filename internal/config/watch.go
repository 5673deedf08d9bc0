package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow is the per-path quiet period a filesystem event must
// survive before it's acted on, absorbing editors that write a file in
// several small operations.
const debounceWindow = time.Second

// Watch watches path for changes and invokes onChange with each
// successfully parsed revision, debounced to at most one reload per
// debounceWindow. A parse failure is logged and does not invoke onChange;
// the previously loaded config stays in effect. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var mu sync.Mutex
	pending := map[string]*time.Timer{}

	debounce := func(name string) {
		mu.Lock()
		defer mu.Unlock()

		if t, ok := pending[name]; ok {
			t.Stop()
		}
		pending[name] = time.AfterFunc(debounceWindow, func() {
			mu.Lock()
			delete(pending, name)
			mu.Unlock()

			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed, keeping previous config", zap.Error(err))
				return
			}
			onChange(cfg)
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
