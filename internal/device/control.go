package device

import "context"

// Type classifies a device.
type Type string

// Known device types.
const (
	TypePlug    Type = "plug"
	TypeStrip   Type = "strip"
	TypeBulb    Type = "bulb"
	TypeDimmer  Type = "dimmer"
	TypeUnknown Type = "unknown"
)

// Info is an opaque device information record (system or hardware info).
// Its schema belongs to the device firmware.
type Info map[string]any

// Ack is the raw acknowledgement a device returns for a mutation.
type Ack map[string]any

// Controller finds devices on the network.
type Controller interface {
	// Discover scans the network. Handles are returned in discovery order,
	// which is not stable between scans.
	Discover(ctx context.Context) ([]Handle, error)

	// DiscoverSingle connects to the device at address.
	DiscoverSingle(ctx context.Context, address string) (Handle, error)
}

// Handle is one physical device. Accessors read state cached by the last
// Update and perform no I/O. Implementations need not be safe for
// concurrent use.
type Handle interface {
	Address() string

	// Update refreshes the cached state from the device.
	Update(ctx context.Context) error

	DeviceID() string
	Alias() string
	IsOn() bool
	Model() string
	DeviceType() Type
	SysInfo() Info
	HWInfo() Info

	TurnOn(ctx context.Context) (Ack, error)
	TurnOff(ctx context.Context) (Ack, error)

	// SetLightState applies a light state. Devices that are not lights
	// return ErrUnsupported.
	SetLightState(ctx context.Context, state LightState) (Ack, error)

	// Children returns child sockets in index order, or nil.
	Children() []Child
}

// Child is a socket of a multi-outlet device.
type Child interface {
	ID() string
	Alias() string
	IsOn() bool
	TurnOn(ctx context.Context) (Ack, error)
	TurnOff(ctx context.Context) (Ack, error)
}

// Dimmable is implemented by handles that report a brightness level.
type Dimmable interface {
	Brightness() int
}

// LightState is a partial light state; nil fields are left unchanged.
type LightState struct {
	ColorTemp  *int `json:"color_temp,omitempty"`
	Brightness *int `json:"brightness,omitempty"`
	Hue        *int `json:"hue,omitempty"`
	Saturation *int `json:"saturation,omitempty"`
	Value      *int `json:"value,omitempty"`

	// TransitionMs is the fade time in milliseconds; 0 means immediate.
	TransitionMs int `json:"transition,omitempty"`
}

// ColorTempState sets the white colour temperature.
func ColorTempState(kelvin, transitionMs int) LightState {
	return LightState{ColorTemp: &kelvin, TransitionMs: transitionMs}
}

// BrightnessState sets brightness in percent.
func BrightnessState(percent, transitionMs int) LightState {
	return LightState{Brightness: &percent, TransitionMs: transitionMs}
}

// HSVState sets a colour. Colour temperature is forced to 0 so the bulb
// leaves white mode.
func HSVState(hue, saturation, value, transitionMs int) LightState {
	zero := 0
	return LightState{
		Hue:          &hue,
		Saturation:   &saturation,
		Value:        &value,
		ColorTemp:    &zero,
		TransitionMs: transitionMs,
	}
}
