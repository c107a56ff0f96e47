package models

// Config is the relay's static configuration, loaded from a JSON file with
// environment overrides. Device identity and feature flags live in the
// settings store instead, because the backend can change them at runtime.
type Config struct {
	LogLevel string `json:"logLevel"`

	Gateway struct {
		APIBaseURL     string `json:"apiBaseUrl"`
		PushURL        string `json:"pushUrl"`
		HTTPTimeoutSec int    `json:"httpTimeoutSec"`
	} `json:"gateway"`

	Queue struct {
		DBPath         string `json:"dbPath"`
		Workers        int    `json:"workers"`
		PollIntervalMs int    `json:"pollIntervalMs"`
	} `json:"queue"`

	Server struct {
		Port int `json:"port"`
	} `json:"server"`

	// Radio configures the local send agent. An empty AgentURL leaves the
	// relay inbound-only; outbound sends then fail with a permission error.
	Radio struct {
		AgentURL string `json:"agentUrl"`
		MultiSim bool   `json:"multiSim"`
	} `json:"radio"`

	SettingsPath   string `json:"settingsPath"`
	MessagesDBPath string `json:"messagesDbPath"`

	Retry RetryConfig `json:"retry"`

	Tracing TracingConfig `json:"tracing"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	UseStdout    bool    `json:"useStdout"`
	OTLPEndpoint string  `json:"otlpEndpoint"`
	SampleRate   float64 `json:"sampleRate"`
	Environment  string  `json:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
