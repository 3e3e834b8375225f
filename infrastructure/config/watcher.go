package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Tunables are the runtime-changeable knobs. They cover behavior that is
// safe to flip without a restart; storage and server wiring stay static.
type Tunables struct {
	// MaxCascadeDepth bounds how many transforms a single write may
	// trigger transitively before the rest of the cascade is dropped.
	// Zero means unbounded.
	MaxCascadeDepth int `yaml:"maxCascadeDepth"`

	// QueueRetentionHours prunes completed queue entries older than this
	QueueRetentionHours int `yaml:"queueRetentionHours"`

	// HistorySize caps the bus event history ring
	HistorySize int `yaml:"historySize"`

	Metadata TunablesMetadata `yaml:"metadata"`
}

// TunablesMetadata records provenance of the tunables file
type TunablesMetadata struct {
	Version   string    `yaml:"version"`
	UpdatedAt time.Time `yaml:"updatedAt"`
	UpdatedBy string    `yaml:"updatedBy"`
}

// Watcher watches the tunables file for changes and hot-reloads it
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *Tunables
	mu       sync.RWMutex
	onChange []func(*Tunables)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher loads the tunables file and begins tracking it for changes.
// Start must be called to receive updates.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	tunables, err := loadTunables(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial tunables: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch tunables file: %w", err)
	}

	// Also watch the directory for atomic saves (rename operations)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("Failed to watch tunables directory", zap.Error(err))
	}

	return &Watcher{
		path:     path,
		watcher:  watcher,
		current:  tunables,
		onChange: make([]func(*Tunables), 0),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for tunables changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Tunables watcher started", zap.String("path", w.path))
}

// Stop stops watching
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Tunables watcher stopped")
}

func (w *Watcher) watchLoop() {
	// Debounce to avoid multiple reloads on editor save sequences
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.handleChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleChange() {
	w.logger.Info("Tunables file changed, reloading", zap.String("path", w.path))

	tunables, err := loadTunables(w.path)
	if err != nil {
		w.logger.Error("Failed to reload tunables", zap.Error(err))
		return
	}
	if err := validateTunables(tunables); err != nil {
		w.logger.Error("Invalid tunables, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = tunables
	handlers := append([]func(*Tunables){}, w.onChange...)
	w.mu.Unlock()

	if old.MaxCascadeDepth != tunables.MaxCascadeDepth {
		w.logger.Info("Max cascade depth changed",
			zap.Int("old", old.MaxCascadeDepth),
			zap.Int("new", tunables.MaxCascadeDepth),
		)
	}

	for _, handler := range handlers {
		go handler(tunables)
	}

	w.logger.Info("Tunables reloaded", zap.String("version", tunables.Metadata.Version))
}

func validateTunables(t *Tunables) error {
	if t.MaxCascadeDepth < 0 {
		return fmt.Errorf("maxCascadeDepth cannot be negative")
	}
	if t.QueueRetentionHours < 0 {
		return fmt.Errorf("queueRetentionHours cannot be negative")
	}
	if t.HistorySize < 0 {
		return fmt.Errorf("historySize cannot be negative")
	}
	return nil
}

// OnChange registers a callback for tunables changes
func (w *Watcher) OnChange(handler func(*Tunables)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// Current returns the current tunables
func (w *Watcher) Current() *Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func loadTunables(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tunables file: %w", err)
	}

	var tunables Tunables
	if err := yaml.Unmarshal(data, &tunables); err != nil {
		return nil, fmt.Errorf("failed to parse tunables: %w", err)
	}

	if tunables.Metadata.Version == "" {
		tunables.Metadata.Version = "1.0.0"
	}
	tunables.Metadata.UpdatedAt = time.Now()
	return &tunables, nil
}
