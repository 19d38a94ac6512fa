package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dtsresolve/internal/shared/observability"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when its content changes and hands
// the new configuration, env overrides applied, to a callback. Saves that
// leave the bytes unchanged do not trigger a reload.
type Watcher struct {
	path     string
	callback func(*Config)
	debounce time.Duration

	mu     sync.Mutex
	digest []byte
	timer  *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(path string, callback func(*Config)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		callback: callback,
		debounce: reloadDebounce,
		stop:     make(chan struct{}),
	}
}

// Start records the current file digest and watches the parent directory,
// which also catches editors that save by renaming a temp file over it.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return err
	}
	w.digest, _ = fileDigest(w.path)

	w.wg.Add(1)
	go w.loop(ctx, fsw)
	slog.Info("watching config", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()
	defer w.cancelPending()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.path && event.Op&relevant != 0 {
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "path", w.path, "error", err)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) reload() {
	digest, err := fileDigest(w.path)
	if err != nil {
		// mid-rename; the create event that follows schedules another reload
		slog.Debug("config not readable yet", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	unchanged := bytes.Equal(digest, w.digest)
	w.digest = digest
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		observability.ConfigReloadErrorsTotal.Inc()
		slog.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	ApplyEnvOverrides(cfg)
	observability.ConfigReloadsTotal.Inc()
	slog.Info("config reloaded", "path", w.path)

	if w.callback != nil {
		w.callback(cfg)
	}
}

func fileDigest(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}
