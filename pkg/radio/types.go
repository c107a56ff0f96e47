package radio

import "context"

// Result codes reported by the platform for segment-level outcomes. Zero is
// success; the nonzero codes mirror the cellular stack's send failures.
const (
	ResultOK                         = 0
	ResultErrorGenericFailure        = 1
	ResultErrorRadioOff              = 2
	ResultErrorNullPayload           = 3
	ResultErrorNoService             = 4
	ResultErrorLimitExceeded         = 5
	ResultErrorShortCodeNotAllowed   = 6
	ResultErrorShortCodeNeverAllowed = 7

	// Delivery-report specific.
	ResultDeliveryCanceled = 1
)

// Callbacks carries the per-segment completion hooks registered at send
// time. The platform invokes each hook exactly once per segment per outcome
// type, tagged with the opaque correlation ids it was registered with.
type Callbacks struct {
	MessageID   string
	BatchID     string
	OnSent      func(messageID, batchID string, resultCode int)
	OnDelivered func(messageID, batchID string, resultCode int)
}

// Transport is the platform's send capability. SendSegments initiates an
// asynchronous send of all segments to one recipient; a nil error means
// initiation succeeded and outcomes will arrive through the callbacks.
type Transport interface {
	SendSegments(ctx context.Context, recipient string, segments []string, cb Callbacks) error
}

// SubscriptionResolver selects a transport bound to a specific SIM
// subscription. Implementations return ErrSubscriptionUnsupported when the
// platform cannot address individual SIMs, in which case callers fall back
// to the default transport.
type SubscriptionResolver interface {
	ForSubscription(simSubscriptionID int) (Transport, error)
}
