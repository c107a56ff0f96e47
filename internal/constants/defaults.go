package constants

// Deduplication configuration
const (
	FingerprintTTLSec        = 5
	FingerprintEvictAboveLen = 100
)

// Delivery queue configuration
const (
	DefaultQueueWorkers        = 4
	DefaultQueuePollIntervalMs = 500
	TaskMaxRetries             = 5
	TaskInitialBackoffSec      = 10
	TaskMaxBackoffSec          = 600
)

// Outbound dispatch configuration
const (
	SingleSegmentLength    = 160
	MultipartSegmentLength = 153
	DefaultSimSubscription = -1
)

// Heartbeat configuration
const (
	MinHeartbeatIntervalMinutes     = 15
	DefaultHeartbeatIntervalMinutes = 30
	// Budget for best-effort telemetry lookups (push token, SIM inventory);
	// a slow lookup must not delay the heartbeat itself.
	TelemetryFetchTimeoutSec = 5
)

// Connectivity probe configuration
const (
	ConnectivityCacheTTLSec = 5
)

// Notification source configuration
const (
	SenderResolutionWindowMs = 30000
	ObserverQueryLimit       = 3
	MinPhoneNumberDigits     = 10
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultServerPort            = 8082
	ServerErrorChannelSize       = 1
)

// Push listener configuration
const (
	PushReconnectInitialSec = 2
	PushReconnectMaxSec     = 60
)

// Default retry/backoff values for non-queue paths
const (
	DefaultRetryBackoffMs = 1000
	DefaultMaxBackoffMs   = 60000
	DefaultMaxAttempts    = 5
)
