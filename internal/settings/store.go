package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Well-known keys. The backend can rewrite several of these at runtime
// (through heartbeat responses), so everything dynamic lives here rather
// than in the static config file.
const (
	KeyDeviceID                 = "DEVICE_ID"
	KeyAPIKey                   = "API_KEY"
	KeyGatewayEnabled           = "GATEWAY_ENABLED"
	KeyReceiveSMSEnabled        = "RECEIVE_SMS_ENABLED"
	KeyHeartbeatEnabled         = "HEARTBEAT_ENABLED"
	KeyHeartbeatIntervalMinutes = "HEARTBEAT_INTERVAL_MINUTES"
	KeyPreferredSim             = "PREFERRED_SIM"
	KeyPushToken                = "PUSH_TOKEN"
	KeyFilterConfig             = "SMS_FILTER_CONFIG"
)

// Store is the relay's key-value settings store. Implementations must be
// safe for concurrent use; ingestion sources read credentials on every event.
type Store interface {
	GetString(key, fallback string) string
	GetBool(key string, fallback bool) bool
	GetInt(key string, fallback int) int
	SetString(key, value string) error
	SetBool(key string, value bool) error
	SetInt(key string, value int) error
}

// FileStore persists settings as a flat JSON object. Writes rewrite the whole
// file; the value set is small and writes are rare.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
	logger *logrus.Logger
}

func NewFileStore(path string, logger *logrus.Logger) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
		logger: logger,
	}

	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return s, nil
}

func (s *FileStore) GetString(key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok {
		return v
	}
	return fallback
}

func (s *FileStore) GetBool(key string, fallback bool) bool {
	switch s.GetString(key, "") {
	case "true":
		return true
	case "false":
		return false
	default:
		return fallback
	}
}

func (s *FileStore) GetInt(key string, fallback int) int {
	v := s.GetString(key, "")
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		s.logger.WithField("key", key).Warn("Non-numeric settings value, using fallback")
		return fallback
	}
	return n
}

func (s *FileStore) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flush()
}

func (s *FileStore) SetBool(key string, value bool) error {
	return s.SetString(key, fmt.Sprintf("%t", value))
}

func (s *FileStore) SetInt(key string, value int) error {
	return s.SetString(key, fmt.Sprintf("%d", value))
}

// flush assumes the lock is held.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// FilterConfigBlob satisfies the filter engine's ConfigSource.
func (s *FileStore) FilterConfigBlob() string {
	return s.GetString(KeyFilterConfig, "")
}
