package models

// InboundMessage is one SMS observed on the device, reassembled from its
// fragments and ready to be forwarded to the backend. Immutable once built.
type InboundMessage struct {
	Sender           string `json:"sender"`
	Message          string `json:"message"`
	ReceivedAtMillis int64  `json:"receivedAtInMillis"`
	Fingerprint      string `json:"fingerprint"`
}

// OutboundRequest is a backend-originated instruction to send one logical
// message to one or more recipients. MessageID correlates all segments and
// status transitions of the message; BatchID correlates all recipients of
// the request.
type OutboundRequest struct {
	Recipients      []string `json:"recipients"`
	Message         string   `json:"message"`
	MessageID       string   `json:"smsId"`
	BatchID         string   `json:"smsBatchId"`
	SimSubscription int      `json:"simSubscription"`
}

type MessageStatusValue string

const (
	StatusSent           MessageStatusValue = "SENT"
	StatusFailed         MessageStatusValue = "FAILED"
	StatusDelivered      MessageStatusValue = "DELIVERED"
	StatusDeliveryFailed MessageStatusValue = "DELIVERY_FAILED"
)

// MessageStatus is one status transition for a logical outbound message,
// produced per radio callback and reported to the backend. Exactly one of
// the *AtMillis fields is set, matching the status.
type MessageStatus struct {
	MessageID         string             `json:"smsId"`
	BatchID           string             `json:"smsBatchId"`
	Status            MessageStatusValue `json:"status"`
	SentAtMillis      int64              `json:"sentAtInMillis,omitempty"`
	DeliveredAtMillis int64              `json:"deliveredAtInMillis,omitempty"`
	FailedAtMillis    int64              `json:"failedAtInMillis,omitempty"`
	ErrorCode         string             `json:"errorCode,omitempty"`
	ErrorMessage      string             `json:"errorMessage,omitempty"`
}

// StoredMessage is a row in the device's message store, as seen by the
// content-store observer and the notification source's sender resolution.
type StoredMessage struct {
	ID               string
	Address          string
	Body             string
	ReceivedAtMillis int64
	Protocol         string
}
