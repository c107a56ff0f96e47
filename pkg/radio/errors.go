package radio

import "errors"

var (
	// ErrPermissionDenied indicates the process lacks the platform capability
	// to send SMS at all. Not retryable.
	ErrPermissionDenied = errors.New("send capability not granted")

	// ErrSubscriptionUnsupported indicates SIM-specific sending is not
	// available; callers should retry on the default transport.
	ErrSubscriptionUnsupported = errors.New("sim-specific sending unsupported")
)
