package config

import (
	"context"
	"os"
	"sync"
	"time"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// Watcher polls the configuration file and reloads it on change. The relay
// only honors a subset of fields at runtime (log level, retry tuning);
// callbacks decide what to apply.
type Watcher struct {
	configPath string
	logger     *logrus.Logger

	mu        sync.RWMutex
	config    *models.Config
	callbacks []func(*models.Config)
}

func NewWatcher(configPath string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     logger,
	}
}

// Start loads the initial configuration and polls for changes until the
// context ends.
func (w *Watcher) Start(ctx context.Context) error {
	config, err := LoadConfig(w.configPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.config = config
	w.mu.Unlock()

	stat, err := os.Stat(w.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	w.logger.WithField("path", w.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stat, err := os.Stat(w.configPath)
			if err != nil {
				w.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}
			if !stat.ModTime().After(lastModTime) {
				continue
			}
			lastModTime = stat.ModTime()
			// Give the writer a moment to finish.
			time.Sleep(100 * time.Millisecond)
			w.reload()
		}
	}
}

// Config returns the current configuration.
func (w *Watcher) Config() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(callback func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) reload() {
	newConfig, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload configuration, keeping current one")
		return
	}

	w.mu.Lock()
	w.config = newConfig
	callbacks := make([]func(*models.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded")
	for _, callback := range callbacks {
		callback(newConfig)
	}
}
