package gateway

// ForwardSMSRequest carries one inbound message to the backend.
type ForwardSMSRequest struct {
	Sender           string `json:"sender"`
	Message          string `json:"message"`
	ReceivedAtMillis int64  `json:"receivedAtInMillis"`
	Fingerprint      string `json:"fingerprint"`
}

type ForwardSMSResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	Error        string `json:"error,omitempty"`
}

// StatusUpdateRequest reports one status transition of an outbound message.
type StatusUpdateRequest struct {
	MessageID         string `json:"smsId"`
	BatchID           string `json:"smsBatchId"`
	Status            string `json:"status"`
	SentAtMillis      int64  `json:"sentAtInMillis,omitempty"`
	DeliveredAtMillis int64  `json:"deliveredAtInMillis,omitempty"`
	FailedAtMillis    int64  `json:"failedAtInMillis,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

type StatusUpdateResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	Error        string `json:"error,omitempty"`
}

// SimInfo describes one active SIM subscription.
type SimInfo struct {
	SubscriptionID int    `json:"subscriptionId"`
	SlotIndex      int    `json:"slotIndex"`
	Carrier        string `json:"carrier,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

type SimInventory struct {
	LastUpdatedMillis int64     `json:"lastUpdated"`
	Sims              []SimInfo `json:"sims"`
}

// HeartbeatRequest is the periodic device/telemetry snapshot.
type HeartbeatRequest struct {
	PushToken             string        `json:"pushToken,omitempty"`
	BatteryPercentage     int           `json:"batteryPercentage"`
	IsCharging            bool          `json:"isCharging"`
	NetworkType           string        `json:"networkType"`
	AppVersionName        string        `json:"appVersionName"`
	AppVersionCode        int           `json:"appVersionCode"`
	DeviceUptimeMillis    int64         `json:"deviceUptimeMillis"`
	MemoryFreeBytes       int64         `json:"memoryFreeBytes"`
	MemoryTotalBytes      int64         `json:"memoryTotalBytes"`
	MemoryMaxBytes        int64         `json:"memoryMaxBytes"`
	StorageAvailableBytes int64         `json:"storageAvailableBytes"`
	StorageTotalBytes     int64         `json:"storageTotalBytes"`
	Timezone              string        `json:"timezone"`
	Locale                string        `json:"locale"`
	ReceiveSMSEnabled     bool          `json:"receiveSMSEnabled"`
	SimInfo               *SimInventory `json:"simInfo,omitempty"`
}

// HeartbeatResponse may carry server-adjusted device settings. A zero
// HeartbeatIntervalMinutes means "no change".
type HeartbeatResponse struct {
	PushTokenUpdated         bool `json:"pushTokenUpdated"`
	HeartbeatIntervalMinutes int  `json:"heartbeatIntervalMinutes,omitempty"`
	GatewayEnabled           *bool `json:"gatewayEnabled,omitempty"`
}
