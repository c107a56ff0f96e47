package main

import (
	"context"
	"os"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/settings"
	"smsrelay/pkg/gateway"
	"smsrelay/pkg/radio"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// hostCollector assembles the heartbeat telemetry snapshot from the host.
// Every field is best effort; a failed lookup degrades to its zero value
// rather than failing the heartbeat.
type hostCollector struct {
	settings    settings.Store
	bridge      *radio.Bridge
	logger      *logrus.Logger
	dataDir     string
	versionName string
	versionCode int

	online func() bool
}

func (c *hostCollector) Collect(ctx context.Context) gateway.HeartbeatRequest {
	req := gateway.HeartbeatRequest{
		// A mains-powered host reports a full, charging battery.
		BatteryPercentage: 100,
		IsCharging:        true,
		NetworkType:       "none",
		AppVersionName:    c.versionName,
		AppVersionCode:    c.versionCode,
		Timezone:          time.Local.String(),
		Locale:            os.Getenv("LANG"),
		PushToken:         c.settings.GetString(settings.KeyPushToken, ""),
	}
	if c.online != nil && c.online() {
		req.NetworkType = "wifi"
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := int64(info.Unit)
		req.DeviceUptimeMillis = int64(info.Uptime) * 1000
		req.MemoryTotalBytes = int64(info.Totalram) * unit
		req.MemoryFreeBytes = int64(info.Freeram) * unit
		req.MemoryMaxBytes = req.MemoryTotalBytes
	} else {
		c.logger.WithError(err).Debug("Failed to read system info for heartbeat")
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(c.dataDir, &fs); err == nil {
		bsize := int64(fs.Bsize)
		req.StorageAvailableBytes = int64(fs.Bavail) * bsize
		req.StorageTotalBytes = int64(fs.Blocks) * bsize
	} else {
		c.logger.WithError(err).Debug("Failed to read storage info for heartbeat")
	}

	req.SimInfo = c.simInventory(ctx)
	return req
}

func (c *hostCollector) simInventory(ctx context.Context) *gateway.SimInventory {
	if c.bridge == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, constants.TelemetryFetchTimeoutSec*time.Second)
	defer cancel()

	sims, err := c.bridge.ListSims(fetchCtx)
	if err != nil {
		c.logger.WithError(err).Debug("Failed to fetch SIM inventory for heartbeat")
		return nil
	}

	inventory := &gateway.SimInventory{LastUpdatedMillis: time.Now().UnixMilli()}
	for _, sim := range sims {
		inventory.Sims = append(inventory.Sims, gateway.SimInfo{
			SubscriptionID: sim.SubscriptionID,
			SlotIndex:      sim.SlotIndex,
			Carrier:        sim.Carrier,
			PhoneNumber:    sim.PhoneNumber,
		})
	}
	return inventory
}
