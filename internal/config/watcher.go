package config

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"chatrelay/internal/models"

	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 5 * time.Second

// ConfigWatcher reloads the configuration file when its contents change.
// Callers act only on settings that can change while serving: log level and
// verbose relay logging.
type ConfigWatcher struct {
	configPath   string
	logger       *logrus.Logger
	pollInterval time.Duration

	mu        sync.RWMutex
	current   *models.Config
	digest    [sha256.Size]byte
	callbacks []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath:   configPath,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval must be called before Start. Non-positive values are ignored.
func (cw *ConfigWatcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		cw.pollInterval = d
	}
}

// OnConfigChange registers fn to run after each successful reload. Callbacks
// run in registration order on the watcher goroutine.
func (cw *ConfigWatcher) OnConfigChange(fn func(*models.Config)) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, fn)
	cw.mu.Unlock()
}

// Current returns the last configuration loaded, or nil before Start.
func (cw *ConfigWatcher) Current() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.current
}

// Start loads the file once, then polls it until ctx is done. Only the initial
// load can fail; later read or parse errors are logged and the previous
// configuration is kept.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	raw, err := os.ReadFile(cw.configPath)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.current = cfg
	cw.digest = sha256.Sum256(raw)
	cw.mu.Unlock()

	entry := cw.logger.WithField("path", cw.configPath)
	entry.Info("Configuration watcher started")

	ticker := time.NewTicker(cw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			entry.Info("Configuration watcher stopping")
			return nil
		case <-ticker.C:
			cw.poll()
		}
	}
}

// poll reloads when the file's bytes differ from the last successful load.
// Comparing contents catches edits that keep the modification time.
func (cw *ConfigWatcher) poll() {
	raw, err := os.ReadFile(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to read configuration file")
		return
	}

	sum := sha256.Sum256(raw)
	cw.mu.RLock()
	unchanged := sum == cw.digest
	cw.mu.RUnlock()
	if unchanged {
		return
	}

	cw.logger.Debug("Configuration file changed")
	if cw.reload() {
		cw.mu.Lock()
		cw.digest = sum
		cw.mu.Unlock()
	}
}

// reload parses the file and notifies callbacks. It reports whether the new
// configuration was accepted.
func (cw *ConfigWatcher) reload() bool {
	next, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return false
	}

	cw.mu.Lock()
	prev := cw.current
	cw.current = next
	callbacks := append([]func(*models.Config)(nil), cw.callbacks...)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")
	cw.logChanges(prev, next)

	for _, fn := range callbacks {
		cw.notify(fn, next)
	}
	return true
}

func (cw *ConfigWatcher) notify(fn func(*models.Config), cfg *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	fn(cfg)
}

type settingChange struct {
	name     string
	old, new interface{}
}

// changedSettings lists the differences callers care about. Settings that
// need a restart are reported by requiresRestart instead.
func changedSettings(prev, next *models.Config) []settingChange {
	var changes []settingChange
	if prev.LogLevel != next.LogLevel {
		changes = append(changes, settingChange{"log_level", prev.LogLevel, next.LogLevel})
	}
	if prev.Relay.VerboseLogging != next.Relay.VerboseLogging {
		changes = append(changes, settingChange{"relay.verbose_logging", prev.Relay.VerboseLogging, next.Relay.VerboseLogging})
	}
	return changes
}

func requiresRestart(prev, next *models.Config) bool {
	return prev.Server.Host != next.Server.Host ||
		prev.Server.Port != next.Server.Port ||
		prev.Database.Path != next.Database.Path
}

func (cw *ConfigWatcher) logChanges(prev, next *models.Config) {
	if prev == nil {
		return
	}
	for _, c := range changedSettings(prev, next) {
		cw.logger.WithFields(logrus.Fields{
			"setting": c.name,
			"old":     c.old,
			"new":     c.new,
		}).Info("Setting changed")
	}
	if requiresRestart(prev, next) {
		cw.logger.Warn("Listen address or database path changed; restart required to apply")
	}
}

// ApplyLogLevel sets logger's level from cfg. An unparsable level is logged
// and the current level kept.
func ApplyLogLevel(logger *logrus.Logger, cfg *models.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid log level")
		return
	}
	logger.SetLevel(level)
}
