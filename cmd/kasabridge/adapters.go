package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/api"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/influxdb"
)

// influxSink writes refreshed snapshots as device state points.
// Writes are queued on the client's batch buffer and never block the worker.
type influxSink struct {
	client *influxdb.Client
}

// StoreSnapshots implements dispatch.SnapshotSink.
func (s influxSink) StoreSnapshots(_ context.Context, snaps []device.Snapshot) error {
	for _, snap := range snaps {
		at := snap.UpdatedAt
		if at.IsZero() {
			at = time.Now()
		}
		s.client.WriteDeviceState(deviceState(snap), at)
	}
	return nil
}

// influxRecorder writes a job outcome point for every finished job.
type influxRecorder struct {
	client *influxdb.Client
}

// Record implements dispatch.Recorder.
func (r influxRecorder) Record(_ context.Context, rec dispatch.JobRecord) error {
	at := rec.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.client.WriteJobOutcome(jobOutcome(rec), at)
	return nil
}

func deviceState(snap device.Snapshot) influxdb.DeviceState {
	s := influxdb.DeviceState{
		Address:    snap.Address,
		Alias:      snap.Alias,
		DeviceType: string(snap.DeviceType),
		Model:      snap.Model,
		On:         snap.PowerState,
		Children:   len(snap.Children),
		ChildrenOn: snap.ChildrenOn(),
	}
	if snap.Brightness != nil {
		s.Brightness = *snap.Brightness
		s.HasBrightness = true
	}
	return s
}

func jobOutcome(rec dispatch.JobRecord) influxdb.JobOutcome {
	return influxdb.JobOutcome{
		Action:    string(rec.Action),
		Address:   rec.Address,
		Success:   rec.Status == dispatch.StatusSucceeded,
		ErrorCode: string(rec.ErrorCode),
		Duration:  rec.Duration,
	}
}

// issueToken loads the configuration and prints a signed API token.
func issueToken(w io.Writer, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
