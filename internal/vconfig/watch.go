package vconfig

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"vaultlang/internal/obslog"
)

// Watch watches the config file (and, in the same directory, any
// `*.rules` pattern-rule files) for changes and invokes onChange with the
// freshly reloaded Config whenever one is modified. A file-watch-triggers-
// reload pattern covering both the config and rule-set files, since a
// rule-set edit must also invalidate the analysis cache (the cache key
// includes rule_set_version).
//
// The returned stop function closes the watcher. Watch failures are
// logged and treated as non-fatal: callers keep running on the
// last-loaded Config.
func Watch(root string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, ".vaultlang")
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		log := obslog.Get(obslog.CategoryCLI)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, loadErr := LoadFromWorkspace(root)
				if loadErr != nil {
					log.Warn("config reload failed after %s: %v", event.Name, loadErr)
					continue
				}
				log.Info("config reloaded after change to %s", event.Name)
				onChange(cfg)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error: %v", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
