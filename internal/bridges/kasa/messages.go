package kasa

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// RequestMessage is published by a caller to request a device operation.
// Topic: graylogic/request/kasa/{channel}
//
// The channel is taken from the topic; a channel in the payload is ignored.
type RequestMessage struct {
	RequestID  int64           `json:"request_id"`
	Action     dispatch.Action `json:"action"`
	Address    string          `json:"address,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// StateMessage carries the last known snapshot of a device.
// Topic: graylogic/state/kasa/{address}
// QoS: configured, Retained: Yes
type StateMessage struct {
	Address   string          `json:"address"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  device.Snapshot `json:"snapshot"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/kasa
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string          `json:"bridge"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         HealthStatus    `json:"status"`
	Version        string          `json:"version,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	Dispatcher     *dispatch.Stats `json:"dispatcher,omitempty"`
	DevicesManaged int             `json:"devices_managed"`
	Reason         string          `json:"reason,omitempty"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats dispatch.Stats, deviceCount int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		Dispatcher:     &stats,
		DevicesManaged: deviceCount,
	}
}

// NewLWTMessage creates the Last Will message the broker publishes if the
// bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// ParseRequestMessage decodes a request payload.
func ParseRequestMessage(payload []byte) (RequestMessage, error) {
	var msg RequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return RequestMessage{}, err
	}
	return msg, nil
}
