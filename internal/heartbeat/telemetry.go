package heartbeat

import (
	"context"

	"smsrelay/pkg/gateway"
)

// Collector gathers the device/telemetry snapshot sent with each heartbeat.
// Implementations live at the platform boundary; collection failures should
// degrade to zero values rather than fail the heartbeat.
type Collector interface {
	Collect(ctx context.Context) gateway.HeartbeatRequest
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) gateway.HeartbeatRequest

func (f CollectorFunc) Collect(ctx context.Context) gateway.HeartbeatRequest {
	return f(ctx)
}
