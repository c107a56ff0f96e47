package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
	"smsrelay/internal/security"
)

var (
	ErrMissingAPIBaseURL   = models.ConfigError{Message: "missing gateway API base URL"}
	ErrMissingQueueDBPath  = models.ConfigError{Message: "missing task database path"}
	ErrMissingSettingsPath = models.ConfigError{Message: "missing settings file path"}
)

// LoadConfig reads the relay configuration, applies environment overrides,
// validates, and fills in defaults.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	if c.Queue.DBPath == "" {
		return ErrMissingQueueDBPath
	}
	if c.SettingsPath == "" {
		return ErrMissingSettingsPath
	}

	if err := security.ValidateFilePath(c.Queue.DBPath); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid task database path: %v", err)}
	}
	if err := security.ValidateFilePath(c.SettingsPath); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid settings path: %v", err)}
	}
	if c.MessagesDBPath != "" {
		if err := security.ValidateFilePath(c.MessagesDBPath); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid message database path: %v", err)}
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Gateway.HTTPTimeoutSec <= 0 {
		c.Gateway.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = constants.DefaultQueueWorkers
	}
	if c.Queue.PollIntervalMs <= 0 {
		c.Queue.PollIntervalMs = constants.DefaultQueuePollIntervalMs
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("SMSRELAY_API_BASE_URL"); url != "" {
		c.Gateway.APIBaseURL = url
	}
	if url := os.Getenv("SMSRELAY_PUSH_URL"); url != "" {
		c.Gateway.PushURL = url
	}
	if url := os.Getenv("SMSRELAY_RADIO_AGENT_URL"); url != "" {
		c.Radio.AgentURL = url
	}
	if path := os.Getenv("SMSRELAY_QUEUE_DB_PATH"); path != "" {
		c.Queue.DBPath = path
	}
	if path := os.Getenv("SMSRELAY_SETTINGS_PATH"); path != "" {
		c.SettingsPath = path
	}
	if level := os.Getenv("SMSRELAY_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if port := os.Getenv("SMSRELAY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}
