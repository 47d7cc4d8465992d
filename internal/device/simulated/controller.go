package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
)

// Operation names passed to the call hook.
const (
	OpDiscover       = "discover"
	OpDiscoverSingle = "discover_single"
	OpUpdate         = "update"
	OpTurnOn         = "turn_on"
	OpTurnOff        = "turn_off"
	OpSetLightState  = "set_light_state"
	OpChildTurnOn    = "child_turn_on"
	OpChildTurnOff   = "child_turn_off"
)

// Controller implements device.Controller over in-memory devices.
type Controller struct {
	mu          sync.Mutex
	order       []string
	devices     map[string]*physical
	latency     time.Duration
	unreachable map[string]bool
	failNext    map[string]error
	hook        func(op, address string)
}

var _ device.Controller = (*Controller)(nil)

// New creates a controller populated from cfg.
func New(cfg config.SimulatedConfig) *Controller {
	c := &Controller{
		devices:     make(map[string]*physical),
		latency:     cfg.Latency,
		unreachable: make(map[string]bool),
		failNext:    make(map[string]error),
	}
	for _, dc := range cfg.Devices {
		c.AddDevice(dc)
	}
	return c
}

// AddDevice adds (or replaces) a simulated device.
func (c *Controller) AddDevice(dc config.SimulatedDeviceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.devices[dc.Address]; !exists {
		c.order = append(c.order, dc.Address)
	}
	c.devices[dc.Address] = newPhysical(dc)
	c.unreachable[dc.Address] = dc.Unreachable
}

// SetUnreachable makes every call to address fail with device.ErrUnreachable.
func (c *Controller) SetUnreachable(address string, unreachable bool) {
	c.mu.Lock()
	c.unreachable[address] = unreachable
	c.mu.Unlock()
}

// FailNext makes the next call touching address return err.
func (c *Controller) FailNext(address string, err error) {
	c.mu.Lock()
	c.failNext[address] = err
	c.mu.Unlock()
}

// SetHook registers fn to observe every device call before it runs.
func (c *Controller) SetHook(fn func(op, address string)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// SetLatency changes the delay added to every call.
func (c *Controller) SetLatency(d time.Duration) {
	c.mu.Lock()
	c.latency = d
	c.mu.Unlock()
}

// PowerState reports the live power state of address.
func (c *Controller) PowerState(address string) (on, ok bool) {
	c.mu.Lock()
	p, ok := c.devices[address]
	c.mu.Unlock()
	if !ok {
		return false, false
	}
	return p.snapshot().on, true
}

// LastTransition reports the transition time of the last light change on address.
func (c *Controller) LastTransition(address string) int {
	c.mu.Lock()
	p, ok := c.devices[address]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTransition
}

// Discover returns a handle per reachable device, in configuration order.
func (c *Controller) Discover(ctx context.Context) ([]device.Handle, error) {
	if err := c.call(ctx, OpDiscover, ""); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	handles := make([]device.Handle, 0, len(c.order))
	for _, addr := range c.order {
		if c.unreachable[addr] {
			continue
		}
		handles = append(handles, &Handle{ctrl: c, dev: c.devices[addr]})
	}
	return handles, nil
}

// DiscoverSingle returns a handle for address.
func (c *Controller) DiscoverSingle(ctx context.Context, address string) (device.Handle, error) {
	if address == "" {
		return nil, device.ErrInvalidAddress
	}
	if err := c.call(ctx, OpDiscoverSingle, address); err != nil {
		return nil, err
	}

	c.mu.Lock()
	p, ok := c.devices[address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no device answered at %s", device.ErrUnreachable, address)
	}
	return &Handle{ctrl: c, dev: p}, nil
}

// call runs the hook, waits out the latency and applies injected failures.
func (c *Controller) call(ctx context.Context, op, address string) error {
	c.mu.Lock()
	hook := c.hook
	latency := c.latency
	unreachable := address != "" && c.unreachable[address]
	injected, hasInjected := c.failNext[address]
	if hasInjected && address != "" {
		delete(c.failNext, address)
	}
	c.mu.Unlock()

	if hook != nil {
		hook(op, address)
	}

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s %s: %w", op, address, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, address, err)
	}

	if unreachable {
		return fmt.Errorf("%w: %s timed out", device.ErrUnreachable, address)
	}
	if hasInjected && address != "" {
		return fmt.Errorf("%s %s: %w", op, address, injected)
	}
	return nil
}
