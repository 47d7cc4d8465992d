package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kasabridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// ============================================================================
// run
// ============================================================================

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("KASABRIDGE_CONFIG", "/nonexistent/path/kasabridge.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_APIOnlyStartsAndStops(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
bridge:
  id: kasa-test
kasa:
  poll_interval: 20ms
  shutdown_timeout: 2s
  simulated:
    devices:
      - address: "10.0.0.1"
        type: plug
database:
  path: "`+filepath.Join(dir, "kasa.db")+`"
mqtt:
  enabled: false
api:
  host: "127.0.0.1"
  port: `+strconv.Itoa(freePort(t))+`
logging:
  level: error
security:
  jwt:
    secret: "`+testSecret+`"
`)
	t.Setenv("KASABRIDGE_CONFIG", path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "kasa.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestNewController(t *testing.T) {
	if _, err := newController(config.KasaConfig{Driver: config.DriverSimulated}); err != nil {
		t.Errorf("simulated driver error = %v", err)
	}
	if _, err := newController(config.KasaConfig{Driver: "tapo"}); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("KASABRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}
	t.Setenv("KASABRIDGE_CONFIG", "/etc/kasa.yaml")
	if got := getConfigPath(); got != "/etc/kasa.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// ============================================================================
// Token issuing
// ============================================================================

func TestIssueToken(t *testing.T) {
	t.Setenv("KASABRIDGE_CONFIG", writeConfig(t, `
security:
  jwt:
    secret: "`+testSecret+`"
`))

	var buf bytes.Buffer
	if err := issueToken(&buf, "panel-1", time.Hour); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(buf.String()), "."); len(parts) != 3 {
		t.Errorf("output %q is not a JWT", buf.String())
	}

	if err := issueToken(&buf, "panel-1", 0); err == nil {
		t.Error("zero ttl should fail")
	}
}

// ============================================================================
// Adapters
// ============================================================================

func TestDeviceState(t *testing.T) {
	b := 70
	snap := device.Snapshot{
		Address:    "10.0.0.2",
		Alias:      "Strip",
		DeviceType: device.TypeStrip,
		Model:      "HS300(US)",
		PowerState: true,
		Children: []device.ChildSnapshot{
			{Index: 0, PowerState: true},
			{Index: 1, PowerState: false},
			{Index: 2, PowerState: true},
		},
	}

	got := deviceState(snap)
	if got.Address != "10.0.0.2" || got.DeviceType != "strip" || !got.On {
		t.Errorf("deviceState() = %+v", got)
	}
	if got.Children != 3 || got.ChildrenOn != 2 {
		t.Errorf("children = %d/%d, want 2/3 on", got.ChildrenOn, got.Children)
	}
	if got.HasBrightness {
		t.Error("strip should have no brightness")
	}

	snap.Brightness = &b
	if got := deviceState(snap); !got.HasBrightness || got.Brightness != 70 {
		t.Errorf("brightness = %v/%d", got.HasBrightness, got.Brightness)
	}
}

func TestJobOutcome(t *testing.T) {
	rec := dispatch.JobRecord{
		Action:    dispatch.ActionSetPower,
		Address:   "10.0.0.9",
		Status:    dispatch.StatusFailed,
		ErrorCode: dispatch.CodeUnknownDevice,
		Duration:  15 * time.Millisecond,
	}
	got := jobOutcome(rec)
	if got.Action != "set_power" || got.Success || got.ErrorCode != "UNKNOWN_DEVICE" || got.Duration != rec.Duration {
		t.Errorf("jobOutcome() = %+v", got)
	}

	rec.Status = dispatch.StatusSucceeded
	rec.ErrorCode = ""
	if got := jobOutcome(rec); !got.Success {
		t.Error("succeeded job should report success")
	}
}

// A nil client (InfluxDB closed or never connected) must not panic.
func TestInfluxAdapters_ClosedClient(t *testing.T) {
	sink := influxSink{}
	if err := sink.StoreSnapshots(context.Background(), []device.Snapshot{{Address: "a"}}); err != nil {
		t.Errorf("StoreSnapshots() error = %v", err)
	}
	rec := influxRecorder{}
	if err := rec.Record(context.Background(), dispatch.JobRecord{JobID: "j"}); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

// ============================================================================
// History pruning
// ============================================================================

type countingPruner struct {
	calls chan time.Duration
	err   error
}

func (p *countingPruner) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	p.calls <- olderThan
	return 3, p.err
}

func TestPruneHistoryLoop(t *testing.T) {
	log := logging.NewWithWriter(&bytes.Buffer{}, config.LoggingConfig{Level: "error"}, "test")

	p := &countingPruner{calls: make(chan time.Duration, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pruneHistoryLoop(ctx, p, 48*time.Hour, log)
		close(done)
	}()

	select {
	case got := <-p.calls:
		if got != 48*time.Hour {
			t.Errorf("retention = %v, want 48h", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prune did not run at startup")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestPruneHistoryLoop_StopsOnCanceledError(t *testing.T) {
	log := logging.NewWithWriter(&bytes.Buffer{}, config.LoggingConfig{Level: "error"}, "test")
	p := &countingPruner{calls: make(chan time.Duration, 1), err: context.Canceled}

	done := make(chan struct{})
	go func() {
		pruneHistoryLoop(context.Background(), p, time.Hour, log)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return on context.Canceled")
	}
}
