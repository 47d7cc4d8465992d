package simulated

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

// Handle is a simulated device handle. Like a real one it caches the
// state read by Update; successful mutations refresh the cache.
type Handle struct {
	ctrl    *Controller
	dev     *physical
	cache   state
	updated bool
}

var (
	_ device.Handle   = (*Handle)(nil)
	_ device.Dimmable = (*Handle)(nil)
)

// Address returns the device address.
func (h *Handle) Address() string { return h.dev.address }

// Update reads the live device state into the cache.
func (h *Handle) Update(ctx context.Context) error {
	if err := h.ctrl.call(ctx, OpUpdate, h.dev.address); err != nil {
		return err
	}
	h.refresh()
	return nil
}

func (h *Handle) refresh() {
	h.cache = h.dev.snapshot()
	h.updated = true
}

func (h *Handle) DeviceID() string        { return h.cache.id }
func (h *Handle) Alias() string           { return h.cache.alias }
func (h *Handle) IsOn() bool              { return h.cache.on }
func (h *Handle) Model() string           { return h.cache.model }
func (h *Handle) DeviceType() device.Type { return h.cache.typ }

// Brightness is 0 for devices without dimming.
func (h *Handle) Brightness() int {
	if h.cache.typ != device.TypeBulb && h.cache.typ != device.TypeDimmer {
		return 0
	}
	return h.cache.brightness
}

// SysInfo mirrors the shape of a Kasa get_sysinfo reply.
func (h *Handle) SysInfo() device.Info {
	if !h.updated {
		return device.Info{}
	}
	s := h.cache
	info := device.Info{
		"alias":    s.alias,
		"model":    s.model,
		"deviceId": s.id,
		"mac":      s.mac,
		"hw_ver":   s.hwVersion,
		"sw_ver":   s.fwVersion,
		"type":     sysInfoType(s.typ),
	}

	switch s.typ {
	case device.TypeBulb:
		info["light_state"] = map[string]any{
			"on_off":     boolInt(s.on),
			"brightness": s.brightness,
			"color_temp": s.colorTemp,
			"hue":        s.hue,
			"saturation": s.saturation,
		}
	case device.TypeDimmer:
		info["relay_state"] = boolInt(s.on)
		info["brightness"] = s.brightness
	default:
		info["relay_state"] = boolInt(s.on)
	}

	if len(s.children) > 0 {
		children := make([]any, 0, len(s.children))
		for _, c := range s.children {
			children = append(children, map[string]any{
				"id":    c.id,
				"alias": c.alias,
				"state": boolInt(c.on),
			})
		}
		info["children"] = children
		info["child_num"] = len(s.children)
	}
	return info
}

// HWInfo returns the hardware subset of the system info.
func (h *Handle) HWInfo() device.Info {
	if !h.updated {
		return device.Info{}
	}
	return device.Info{
		"hw_ver": h.cache.hwVersion,
		"sw_ver": h.cache.fwVersion,
		"mac":    h.cache.mac,
		"type":   sysInfoType(h.cache.typ),
	}
}

// TurnOn switches the device (all sockets on a strip) on.
func (h *Handle) TurnOn(ctx context.Context) (device.Ack, error) {
	return h.power(ctx, OpTurnOn, true)
}

// TurnOff switches the device off.
func (h *Handle) TurnOff(ctx context.Context) (device.Ack, error) {
	return h.power(ctx, OpTurnOff, false)
}

func (h *Handle) power(ctx context.Context, op string, on bool) (device.Ack, error) {
	if err := h.ctrl.call(ctx, op, h.dev.address); err != nil {
		return nil, err
	}
	ack := h.dev.setPower(on)
	if h.dev.typ == device.TypeStrip {
		for i := range h.dev.children {
			h.dev.setChildPower(i, on)
		}
	}
	h.refresh()
	return ack, nil
}

// SetLightState applies ls to a bulb or dimmer.
func (h *Handle) SetLightState(ctx context.Context, ls device.LightState) (device.Ack, error) {
	if err := h.ctrl.call(ctx, OpSetLightState, h.dev.address); err != nil {
		return nil, err
	}
	ack, err := h.dev.applyLightState(ls)
	if err != nil {
		return nil, err
	}
	h.refresh()
	return ack, nil
}

// Children returns the strip's sockets, or nil.
func (h *Handle) Children() []device.Child {
	if len(h.cache.children) == 0 {
		return nil
	}
	out := make([]device.Child, len(h.cache.children))
	for i := range h.cache.children {
		out[i] = &Child{parent: h, index: i}
	}
	return out
}

// Child is one socket of a simulated strip.
type Child struct {
	parent *Handle
	index  int
}

func (c *Child) ID() string    { return c.parent.cache.children[c.index].id }
func (c *Child) Alias() string { return c.parent.cache.children[c.index].alias }
func (c *Child) IsOn() bool    { return c.parent.cache.children[c.index].on }

// TurnOn switches the socket on.
func (c *Child) TurnOn(ctx context.Context) (device.Ack, error) {
	return c.power(ctx, OpChildTurnOn, true)
}

// TurnOff switches the socket off.
func (c *Child) TurnOff(ctx context.Context) (device.Ack, error) {
	return c.power(ctx, OpChildTurnOff, false)
}

func (c *Child) power(ctx context.Context, op string, on bool) (device.Ack, error) {
	h := c.parent
	if err := h.ctrl.call(ctx, op, h.dev.address); err != nil {
		return nil, err
	}
	if c.index >= len(h.dev.children) {
		return nil, fmt.Errorf("%w: %d", device.ErrChildIndex, c.index)
	}
	ack := h.dev.setChildPower(c.index, on)
	h.refresh()
	return ack, nil
}

func sysInfoType(t device.Type) string {
	switch t {
	case device.TypeBulb:
		return "IOT.SMARTBULB"
	default:
		return "IOT.SMARTPLUGSWITCH"
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
