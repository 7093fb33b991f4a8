package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads AppConfig whenever the backing file changes on disk,
// debouncing rapid successive writes. Grounded on the teacher's
// pkg/config/provider.FileProvider.watchLoop: watch the containing
// directory (not the file directly — some filesystems replace the file on
// save rather than writing in place), debounce writes, and re-arm the watch
// if the file is removed and recreated.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onChange func(*AppConfig)
	watch    *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher constructs (but does not start) a config hot-reload watcher.
// onChange is invoked with the newly loaded config after every debounced
// change; a reload that fails to parse or validate is logged and skipped,
// leaving the previous config in effect.
func NewWatcher(path string, onChange func(*AppConfig), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &Error{Action: "watch", Message: path, Err: err}
	}
	return &Watcher{path: path, logger: logger, onChange: onChange, watch: fw, done: make(chan struct{})}, nil
}

// Start begins watching the config file's directory for changes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watch.Add(dir); err != nil {
		return &Error{Action: "watch", Message: dir, Err: err}
	}
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	const debounceDelay = 100 * time.Millisecond
	var debounce *time.Timer
	name := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config hot-reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Stop terminates the watcher and releases its file descriptor.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watch.Close()
}
