package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

func TestJobKinds(t *testing.T) {
	target := Target{Request: Token{RequestID: 3, Channel: "c"}, Device: "10.0.0.1"}
	tests := []struct {
		job  Job
		want Action
	}{
		{DiscoverJob{}, ActionDiscover},
		{LookUpJob{target}, ActionLookUp},
		{CreateDeviceJob{target}, ActionCreateDevice},
		{SetPowerJob{Target: target}, ActionSetPower},
		{SetColorTempJob{Target: target}, ActionSetColorTemp},
		{SetBrightnessJob{Target: target}, ActionSetBrightness},
		{SetHSVJob{Target: target}, ActionSetHSV},
		{SetChildPowerJob{Target: target}, ActionSetChildPower},
	}

	if len(tests) != len(Actions()) {
		t.Fatalf("Actions() lists %d kinds, test covers %d", len(Actions()), len(tests))
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.job.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
			if tt.want != ActionDiscover {
				if tt.job.Token() != target.Request || tt.job.Address() != "10.0.0.1" {
					t.Errorf("Token/Address = %+v/%q", tt.job.Token(), tt.job.Address())
				}
			}
		})
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want map[string]any
	}{
		{"discover", DiscoverJob{}, nil},
		{"power", SetPowerJob{On: true}, map[string]any{"on": true}},
		{"colour temp", SetColorTempJob{Kelvin: 3000, TransitionMs: 10}, map[string]any{"kelvin": 3000, "transition_ms": 10}},
		{"brightness", SetBrightnessJob{Percent: 40}, map[string]any{"percent": 40, "transition_ms": 0}},
		{"hsv", SetHSVJob{Hue: 1, Saturation: 2, Value: 3}, map[string]any{"hue": 1, "saturation": 2, "value": 3, "transition_ms": 0}},
		{"child", SetChildPowerJob{Child: 2}, map[string]any{"child": 2, "on": false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Params(tt.job)
			if len(got) != len(tt.want) {
				t.Fatalf("Params() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Params()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("%w: 10.0.0.1", device.ErrUnknownDevice), CodeUnknownDevice},
		{fmt.Errorf("%w: index 9", device.ErrChildIndex), CodeInvalidParameters},
		{device.ErrInvalidAddress, CodeInvalidParameters},
		{fmt.Errorf("%w: boom", ErrJobPanicked), CodeInternalError},
		{ErrStopped, CodeDispatcherStopped},
		{fmt.Errorf("update: %w", device.ErrUnreachable), CodeDeviceError},
		{errors.New("anything else"), CodeDeviceError},
	}

	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestResponseJSON(t *testing.T) {
	resp := Failure(Token{RequestID: 42, Channel: "ui"}, ActionSetPower, "X", CodeUnknownDevice, "device: unknown device: X")

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{`"request_id":42`, `"action":"set_power"`, `"success":false`, `"code":"UNKNOWN_DEVICE"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"data"`) {
		t.Errorf("failure JSON should omit data: %s", s)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateRunning:  "running",
		StateDraining: "draining",
		StateStopped:  "stopped",
		State(9):      "state(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("String() = %q, want %q", s.String(), want)
		}
	}

	data, _ := json.Marshal(Stats{State: StateDraining})
	if !strings.Contains(string(data), `"state":"draining"`) {
		t.Errorf("Stats JSON = %s", data)
	}
}

func TestState_UnmarshalText(t *testing.T) {
	var stats Stats
	if err := json.Unmarshal([]byte(`{"state":"stopped","executed":4}`), &stats); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if stats.State != StateStopped || stats.Executed != 4 {
		t.Errorf("stats = %+v", stats)
	}

	var s State
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("UnmarshalText(paused) expected error")
	}
}
