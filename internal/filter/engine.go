package filter

import (
	"encoding/json"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// ConfigSource yields the serialized filter configuration blob. The engine
// reads it fresh on every evaluation so rule edits take effect immediately.
type ConfigSource interface {
	FilterConfigBlob() string
}

type Engine struct {
	source ConfigSource
	logger *logrus.Logger
}

func NewEngine(source ConfigSource, logger *logrus.Logger) *Engine {
	return &Engine{source: source, logger: logger}
}

// ShouldProcess reports whether a message from sender with the given body
// passes the configured filter. A disabled filter or an empty rule set always
// passes, in both modes.
func (e *Engine) ShouldProcess(sender, message string) bool {
	cfg := e.loadConfig()
	return Evaluate(cfg, sender, message)
}

// Config returns the currently effective filter configuration, with
// migrations applied.
func (e *Engine) Config() models.FilterConfig {
	return e.loadConfig()
}

// Evaluate applies cfg to (sender, message). Rules are OR-ed: in allow-list
// mode any match passes the message, in block-list mode any match drops it.
func Evaluate(cfg models.FilterConfig, sender, message string) bool {
	if !cfg.Enabled {
		return true
	}
	if len(cfg.Rules) == 0 {
		return true
	}

	anyMatch := false
	for _, rule := range cfg.Rules {
		if rule.Matches(sender, message) {
			anyMatch = true
			break
		}
	}

	if cfg.Mode == models.ModeAllowList {
		return anyMatch
	}
	return !anyMatch
}

// loadConfig parses the stored blob, migrating older shapes as needed. Any
// parse failure degrades to the default (disabled) config rather than
// blocking the pipeline.
func (e *Engine) loadConfig() models.FilterConfig {
	blob := e.source.FilterConfigBlob()
	if blob == "" {
		return defaultConfig()
	}

	var cfg models.FilterConfig
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		e.logger.WithError(err).Error("Failed to parse filter config, filtering disabled")
		return defaultConfig()
	}

	return migrate(cfg)
}

// migrate fills in fields that older config versions did not carry.
func migrate(cfg models.FilterConfig) models.FilterConfig {
	if cfg.Mode == "" {
		cfg.Mode = models.ModeBlockList
	}
	for i, rule := range cfg.Rules {
		if rule.Target == "" {
			cfg.Rules[i].Target = models.TargetSender
		}
	}
	cfg.Version = models.FilterConfigVersion
	return cfg
}

func defaultConfig() models.FilterConfig {
	return models.FilterConfig{
		Version: models.FilterConfigVersion,
		Enabled: false,
		Mode:    models.ModeBlockList,
	}
}
