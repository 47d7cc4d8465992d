package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDeviceState = "kasa_device_state"
	MeasurementJob         = "kasa_job"
)

// DeviceState is the telemetry recorded for a device after a job touches it.
type DeviceState struct {
	Address    string
	Alias      string
	DeviceType string
	Model      string
	On         bool

	// Brightness is only written when HasBrightness is set.
	Brightness    int
	HasBrightness bool

	// ChildrenOn counts child sockets switched on (strips only).
	ChildrenOn int
	Children   int
}

// JobOutcome is the telemetry recorded for every executed job.
type JobOutcome struct {
	Action    string
	Address   string
	Success   bool
	ErrorCode string
	Duration  time.Duration
}

// WriteDeviceState queues a device state point. Non-blocking.
func (c *Client) WriteDeviceState(s DeviceState, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceStatePoint(s, at))
}

// WriteJobOutcome queues a job outcome point. Non-blocking.
func (c *Client) WriteJobOutcome(o JobOutcome, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(jobPoint(o, at))
}

func deviceStatePoint(s DeviceState, at time.Time) *write.Point {
	tags := map[string]string{
		"address": s.Address,
	}
	if s.DeviceType != "" {
		tags["device_type"] = s.DeviceType
	}
	if s.Model != "" {
		tags["model"] = s.Model
	}

	fields := map[string]any{
		"on": s.On,
	}
	if s.Alias != "" {
		fields["alias"] = s.Alias
	}
	if s.HasBrightness {
		fields["brightness"] = s.Brightness
	}
	if s.Children > 0 {
		fields["children"] = s.Children
		fields["children_on"] = s.ChildrenOn
	}

	return write.NewPoint(MeasurementDeviceState, tags, fields, at)
}

func jobPoint(o JobOutcome, at time.Time) *write.Point {
	tags := map[string]string{
		"action":  o.Action,
		"success": boolTag(o.Success),
	}
	if o.Address != "" {
		tags["address"] = o.Address
	}
	if o.ErrorCode != "" {
		tags["error_code"] = o.ErrorCode
	}

	fields := map[string]any{
		"duration_ms": o.Duration.Milliseconds(),
	}
	return write.NewPoint(MeasurementJob, tags, fields, at)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
