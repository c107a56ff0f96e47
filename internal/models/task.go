package models

import "encoding/json"

type TaskKind string

const (
	TaskKindInboundForward TaskKind = "inbound_forward"
	TaskKindStatusUpdate   TaskKind = "status_update"
	TaskKindHeartbeat      TaskKind = "heartbeat"
)

// DeliveryTask is one unit of work for the delivery queue. Name is the
// uniqueness key: inbound-forward tasks get a fresh name per submission,
// status-update tasks reuse the (message-id, status) pair so a newer update
// replaces an unexecuted older one, and the heartbeat task has a single
// fixed name.
type DeliveryTask struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Kind       TaskKind        `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	DeviceID   string          `json:"deviceId"`
	APIKey     string          `json:"-"`
	RetryCount int             `json:"retryCount"`
}
