package dispatch

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

// Job is one deferred device operation. Jobs are immutable values; the
// worker runs each exactly once.
type Job interface {
	Kind() Action
	Token() Token

	// Address is the target device, empty for discovery.
	Address() string

	// Run performs the blocking device calls and returns the response
	// payload. It is only called from the worker goroutine.
	Run(ctx context.Context, rt *Runtime) (any, error)
}

// Runtime is what a running job may touch. It belongs to the worker.
type Runtime struct {
	Controller device.Controller
	Registry   *device.Registry

	touched []device.Snapshot
}

// Put records h in the registry and returns the fresh snapshot.
func (rt *Runtime) Put(h device.Handle) device.Snapshot {
	snap := rt.Registry.Put(h)
	rt.touched = append(rt.touched, snap)
	return snap
}

// Handle returns the registered handle for address.
func (rt *Runtime) Handle(address string) (device.Handle, error) {
	h, err := rt.Registry.Handle(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, address)
	}
	return h, nil
}

func (rt *Runtime) reset() []device.Snapshot {
	touched := rt.touched
	rt.touched = nil
	return touched
}

// Target is the request token and device address shared by every job.
type Target struct {
	Request Token
	Device  string
}

// Token returns the request token.
func (t Target) Token() Token { return t.Request }

// Address returns the device address.
func (t Target) Address() string { return t.Device }

// DiscoverJob scans the network and refreshes every device found.
type DiscoverJob struct {
	Target
}

func (DiscoverJob) Kind() Action { return ActionDiscover }

// Run returns a []device.Snapshot in discovery order. A device that fails
// its update fails the whole job; devices refreshed before it stay registered.
func (j DiscoverJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	handles, err := rt.Controller.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	snaps := make([]device.Snapshot, 0, len(handles))
	for _, h := range handles {
		if err := h.Update(ctx); err != nil {
			return nil, fmt.Errorf("update %s: %w", h.Address(), err)
		}
		snaps = append(snaps, rt.Put(h))
	}
	return snaps, nil
}

// LookUpJob refreshes a device that is already registered.
type LookUpJob struct {
	Target
}

func (LookUpJob) Kind() Action { return ActionLookUp }

func (j LookUpJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	h, err := rt.Handle(j.Device)
	if err != nil {
		return nil, err
	}
	if err := h.Update(ctx); err != nil {
		return nil, fmt.Errorf("update %s: %w", j.Device, err)
	}
	return rt.Put(h), nil
}

// CreateDeviceJob connects to a single address and registers it.
type CreateDeviceJob struct {
	Target
}

func (CreateDeviceJob) Kind() Action { return ActionCreateDevice }

func (j CreateDeviceJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	h, err := rt.Controller.DiscoverSingle(ctx, j.Device)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", j.Device, err)
	}
	if err := h.Update(ctx); err != nil {
		return nil, fmt.Errorf("update %s: %w", j.Device, err)
	}
	return rt.Put(h), nil
}

// SetPowerJob switches a device on or off.
type SetPowerJob struct {
	Target
	On bool
}

func (SetPowerJob) Kind() Action { return ActionSetPower }

func (j SetPowerJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	h, err := rt.Handle(j.Device)
	if err != nil {
		return nil, err
	}

	var ack device.Ack
	if j.On {
		ack, err = h.TurnOn(ctx)
	} else {
		ack, err = h.TurnOff(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("set power %s: %w", j.Device, err)
	}
	rt.Put(h)
	return ack, nil
}

// SetColorTempJob sets the white colour temperature of a bulb.
type SetColorTempJob struct {
	Target
	Kelvin       int
	TransitionMs int
}

func (SetColorTempJob) Kind() Action { return ActionSetColorTemp }

func (j SetColorTempJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	return setLightState(ctx, rt, j.Device, device.ColorTempState(j.Kelvin, j.TransitionMs))
}

// SetBrightnessJob sets the brightness of a bulb or dimmer.
type SetBrightnessJob struct {
	Target
	Percent      int
	TransitionMs int
}

func (SetBrightnessJob) Kind() Action { return ActionSetBrightness }

func (j SetBrightnessJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	return setLightState(ctx, rt, j.Device, device.BrightnessState(j.Percent, j.TransitionMs))
}

// SetHSVJob sets a bulb colour.
type SetHSVJob struct {
	Target
	Hue          int
	Saturation   int
	Value        int
	TransitionMs int
}

func (SetHSVJob) Kind() Action { return ActionSetHSV }

func (j SetHSVJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	return setLightState(ctx, rt, j.Device, device.HSVState(j.Hue, j.Saturation, j.Value, j.TransitionMs))
}

func setLightState(ctx context.Context, rt *Runtime, address string, ls device.LightState) (any, error) {
	h, err := rt.Handle(address)
	if err != nil {
		return nil, err
	}
	ack, err := h.SetLightState(ctx, ls)
	if err != nil {
		return nil, fmt.Errorf("set light state %s: %w", address, err)
	}
	rt.Put(h)
	return ack, nil
}

// SetChildPowerJob switches one socket of a strip.
type SetChildPowerJob struct {
	Target
	Child int
	On    bool
}

func (SetChildPowerJob) Kind() Action { return ActionSetChildPower }

func (j SetChildPowerJob) Run(ctx context.Context, rt *Runtime) (any, error) {
	h, err := rt.Handle(j.Device)
	if err != nil {
		return nil, err
	}

	children := h.Children()
	if j.Child < 0 || j.Child >= len(children) {
		return nil, fmt.Errorf("%w: %s has %d children, got index %d",
			device.ErrChildIndex, j.Device, len(children), j.Child)
	}

	var ack device.Ack
	if j.On {
		ack, err = children[j.Child].TurnOn(ctx)
	} else {
		ack, err = children[j.Child].TurnOff(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("set child %d power %s: %w", j.Child, j.Device, err)
	}
	rt.Put(h)
	return ack, nil
}

// Params returns the operation parameters of a job, for logging and audit.
func Params(job Job) map[string]any {
	switch j := job.(type) {
	case SetPowerJob:
		return map[string]any{"on": j.On}
	case SetColorTempJob:
		return map[string]any{"kelvin": j.Kelvin, "transition_ms": j.TransitionMs}
	case SetBrightnessJob:
		return map[string]any{"percent": j.Percent, "transition_ms": j.TransitionMs}
	case SetHSVJob:
		return map[string]any{
			"hue": j.Hue, "saturation": j.Saturation, "value": j.Value,
			"transition_ms": j.TransitionMs,
		}
	case SetChildPowerJob:
		return map[string]any{"child": j.Child, "on": j.On}
	default:
		return nil
	}
}
