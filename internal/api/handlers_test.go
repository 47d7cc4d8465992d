package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-kasa/internal/audit"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// ============================================================================
// Submissions
// ============================================================================

func TestSubmitRequest_Accepted(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/v1/kasa/requests",
		`{"request_id": 42, "channel": "panel-1", "action": "discover"}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	got := decodeJSON[AcceptedResponse](t, body)
	if got.RequestID != 42 || got.Channel != "panel-1" || got.Status != "accepted" || got.JobID == "" {
		t.Errorf("accepted = %+v", got)
	}

	waitFor(t, "discover", func() bool { return e.dispatcher.Registry().Len() == 3 })
}

func TestConvenienceRoutes(t *testing.T) {
	e := newTestEnv(t)
	e.discover(t)

	tests := []struct {
		name   string
		path   string
		body   string
		action dispatch.Action
	}{
		{"lookup", "/devices/10.0.0.1/lookup", `{"request_id": 2, "channel": "c"}`, dispatch.ActionLookUp},
		{"create", "/devices/10.0.0.3/create", `{"request_id": 3, "channel": "c"}`, dispatch.ActionCreateDevice},
		{"power", "/devices/10.0.0.3/power", `{"request_id": 4, "channel": "c", "on": true}`, dispatch.ActionSetPower},
		{"color temp", "/devices/10.0.0.1/color-temp", `{"request_id": 5, "channel": "c", "kelvin": 2700, "transition_ms": 500}`, dispatch.ActionSetColorTemp},
		{"brightness", "/devices/10.0.0.1/brightness", `{"request_id": 6, "channel": "c", "percent": 40}`, dispatch.ActionSetBrightness},
		{"hsv", "/devices/10.0.0.1/hsv", `{"request_id": 7, "channel": "c", "hue": 120, "saturation": 80, "value": 60}`, dispatch.ActionSetHSV},
		{"child power", "/devices/10.0.0.2/children/1/power", `{"request_id": 8, "channel": "c", "on": true}`, dispatch.ActionSetChildPower},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/api/v1/kasa"+tt.path, tt.body)
			if status != http.StatusAccepted {
				t.Fatalf("status = %d, body = %s", status, body)
			}
			accepted := decodeJSON[AcceptedResponse](t, body)

			var job audit.JobLog
			waitFor(t, "job log entry", func() bool {
				res, err := e.jobs.List(context.Background(), audit.Filter{Action: string(tt.action), Channel: "c"})
				if err != nil {
					return false
				}
				for _, j := range res.Jobs {
					if j.JobID == accepted.JobID {
						job = j
						return true
					}
				}
				return false
			})
			if job.Status != dispatch.StatusSucceeded {
				t.Errorf("job status = %s (%s: %s)", job.Status, job.ErrorCode, job.ErrorMessage)
			}
		})
	}

	if on, _ := e.ctrl.PowerState("10.0.0.3"); !on {
		t.Error("plug 10.0.0.3 should be on")
	}
	snap, err := e.dispatcher.Registry().Snapshot("10.0.0.2")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Children) != 2 || !snap.Children[1].PowerState {
		t.Errorf("strip children = %+v", snap.Children)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"invalid JSON", "/requests", `{"action":`, ErrCodeBadRequest},
		{"unknown action", "/requests", `{"request_id": 1, "channel": "c", "action": "reboot"}`, ErrCodeValidation},
		{"missing channel", "/discover", `{"request_id": 1}`, ErrCodeValidation},
		{"wildcard channel", "/discover", `{"request_id": 1, "channel": "panel/#"}`, ErrCodeValidation},
		{"empty body", "/discover", "", ErrCodeValidation},
		{"string request id", "/discover", `{"request_id": "one", "channel": "c"}`, ErrCodeBadRequest},
		{"kelvin out of range", "/devices/10.0.0.1/color-temp", `{"request_id": 1, "channel": "c", "kelvin": 12000}`, ErrCodeValidation},
		{"power without on", "/devices/10.0.0.3/power", `{"request_id": 1, "channel": "c"}`, ErrCodeValidation},
		{"hue out of range", "/devices/10.0.0.1/hsv", `{"request_id": 1, "channel": "c", "hue": 400, "saturation": 1, "value": 1}`, ErrCodeValidation},
		{"non-numeric child", "/devices/10.0.0.2/children/x/power", `{"request_id": 1, "channel": "c", "on": true}`, ErrCodeBadRequest},
		{"negative child", "/devices/10.0.0.2/children/-1/power", `{"request_id": 1, "channel": "c", "on": true}`, ErrCodeValidation},
		{"null body on child route", "/devices/10.0.0.2/children/0/power", "null", ErrCodeValidation},
		{"null body", "/devices/10.0.0.3/power", "null", ErrCodeValidation},
		{"null request", "/requests", "null", ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/api/v1/kasa"+tt.path, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", status, body)
			}
			if got := decodeJSON[Error](t, body); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", got.Code, tt.wantCode, got.Message)
			}
		})
	}

	if got := e.dispatcher.Stats().Submitted; got != 0 {
		t.Errorf("Submitted = %d, want 0 after rejected requests", got)
	}
}

func TestSubmit_DispatcherStopped(t *testing.T) {
	e := newTestEnv(t)
	e.dispatcher.Shutdown()

	status, body := e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.1/power", `{"request_id": 1, "channel": "c", "on": true}`)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body = %s", status, body)
	}
	if got := decodeJSON[Error](t, body); got.Code != ErrCodeUnavailable {
		t.Errorf("code = %q", got.Code)
	}

	status, body = e.do(t, http.MethodGet, "/api/v1/health", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"dispatcher":"stopped"`) {
		t.Errorf("health after shutdown = %d %s", status, body)
	}
}

// ============================================================================
// Reads
// ============================================================================

func TestDevices(t *testing.T) {
	e := newTestEnv(t)

	if status, _ := e.do(t, http.MethodGet, "/api/v1/kasa/devices/10.0.0.1", ""); status != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", status)
	}

	status, body := e.do(t, http.MethodGet, "/api/v1/kasa/devices", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	empty := decodeJSON[struct {
		Devices []device.Snapshot `json:"devices"`
		Count   int               `json:"count"`
	}](t, body)
	if empty.Count != 0 || empty.Devices == nil {
		t.Errorf("empty list = %+v (devices must be [] not null)", empty)
	}

	e.discover(t)

	status, body = e.do(t, http.MethodGet, "/api/v1/kasa/devices", "")
	list := decodeJSON[struct {
		Devices []device.Snapshot `json:"devices"`
		Count   int               `json:"count"`
	}](t, body)
	if status != http.StatusOK || list.Count != 3 || list.Devices[0].Address != "10.0.0.1" {
		t.Errorf("list = %d %+v", status, list)
	}

	status, body = e.do(t, http.MethodGet, "/api/v1/kasa/devices/10.0.0.2", "")
	snap := decodeJSON[device.Snapshot](t, body)
	if status != http.StatusOK || snap.Alias != "Strip" || len(snap.Children) != 2 {
		t.Errorf("get = %d %+v", status, snap)
	}
}

func TestDeviceHistory(t *testing.T) {
	e := newTestEnv(t)
	e.discover(t)

	status, body := e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.3/power", `{"request_id": 2, "channel": "c", "on": true}`)
	if status != http.StatusAccepted {
		t.Fatalf("power status = %d %s", status, body)
	}

	var hist struct {
		Address string                `json:"address"`
		Entries []device.HistoryEntry `json:"entries"`
		Count   int                   `json:"count"`
	}
	waitFor(t, "two history entries", func() bool {
		_, body := e.do(t, http.MethodGet, "/api/v1/kasa/devices/10.0.0.3/history?limit=10", "")
		hist = decodeJSON[struct {
			Address string                `json:"address"`
			Entries []device.HistoryEntry `json:"entries"`
			Count   int                   `json:"count"`
		}](t, body)
		return hist.Count == 2
	})
	if hist.Address != "10.0.0.3" || !hist.Entries[0].Snapshot.PowerState {
		t.Errorf("newest entry = %+v", hist.Entries[0])
	}

	status, _ = e.do(t, http.MethodGet, "/api/v1/kasa/devices/10.0.0.3/history?limit=abc", "")
	if status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", status)
	}
}

func TestListJobs(t *testing.T) {
	e := newTestEnv(t)
	e.discover(t)

	e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.3/power", `{"request_id": 2, "channel": "c", "on": true}`)
	e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.9.9.9/power", `{"request_id": 3, "channel": "c", "on": true}`)

	waitFor(t, "three jobs executed", func() bool { return e.dispatcher.Stats().Executed == 3 })

	var failed audit.ListResult
	waitFor(t, "failed job listed", func() bool {
		_, body := e.do(t, http.MethodGet, "/api/v1/kasa/jobs?status=failed", "")
		failed = decodeJSON[audit.ListResult](t, body)
		return failed.Total == 1
	})
	if failed.Jobs[0].ErrorCode != string(dispatch.CodeUnknownDevice) || failed.Jobs[0].Address != "10.9.9.9" {
		t.Errorf("failed job = %+v", failed.Jobs[0])
	}

	status, body := e.do(t, http.MethodGet, "/api/v1/kasa/jobs?limit=1&offset=1", "")
	page := decodeJSON[audit.ListResult](t, body)
	if status != http.StatusOK || page.Total != 3 || len(page.Jobs) != 1 || page.Offset != 1 {
		t.Errorf("page = %d %+v", status, page)
	}

	status, _ = e.do(t, http.MethodGet, "/api/v1/kasa/jobs?offset=-1", "")
	if status != http.StatusBadRequest {
		t.Errorf("negative offset status = %d, want 400", status)
	}
}

func TestReads_Unconfigured(t *testing.T) {
	e := newTestEnv(t)
	e.srv.jobs = nil
	e.srv.history = nil

	for _, path := range []string{"/api/v1/kasa/jobs", "/api/v1/kasa/devices/10.0.0.1/history"} {
		status, _ := e.do(t, http.MethodGet, path, "")
		if status != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, status)
		}
	}
}
