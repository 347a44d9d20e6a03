package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
)

// defaultDebounce collapses the burst of events an editor produces on save
const defaultDebounce = 100 * time.Millisecond

// ReloadFunc receives the freshly read configuration
type ReloadFunc func(v *viper.Viper) error

// Watcher re-reads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration

	ready   chan struct{}
	reloads *atomic.Uint64
}

func NewWatcher(path string, reload ReloadFunc) *Watcher {
	return &Watcher{
		path:     path,
		reload:   reload,
		debounce: defaultDebounce,
		ready:    make(chan struct{}),
		reloads:  atomic.NewUint64(0),
	}
}

// Ready is closed once the file is being observed
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Reloads returns the number of successful reloads
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }

// Run observes the file until ctx is done. It is a Job.
//
// The directory is watched rather than the file, so replacing the file
// (as most editors do) is noticed as well.
func (w *Watcher) Run(ctx context.Context) error {
	path, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("invalid config path %s: %w", w.path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	close(w.ready)
	Logger.Infof("watching %s for changes", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			Logger.Warningf("file watcher error: %v", err)

		case <-pending:
			pending = nil
			w.load(path)
		}
	}
}

func (w *Watcher) load(path string) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		Logger.Warningf("failed to read %s, keeping the current configuration: %v", path, err)
		return
	}
	if err := w.reload(v); err != nil {
		Logger.Warningf("failed to apply %s: %v", path, err)
		return
	}
	w.reloads.Inc()
	Logger.Infof("reloaded configuration from %s", path)
}
