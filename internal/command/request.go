package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// Parameter limits.
const (
	MinKelvin     = 2500
	MaxKelvin     = 9000
	MaxPercent    = 100
	MaxHue        = 360
	MaxSaturation = 100
	MaxValue      = 100
)

// channelForbidden holds characters not allowed in a response channel. The
// channel becomes the last level of an MQTT publish topic.
const channelForbidden = "+#\x00"

// Parameter names.
const (
	ParamOn           = "on"
	ParamKelvin       = "kelvin"
	ParamPercent      = "percent"
	ParamHue          = "hue"
	ParamSaturation   = "saturation"
	ParamValue        = "value"
	ParamTransitionMs = "transition_ms"
	ParamChild        = "child"
)

// Request is a device operation as submitted by a caller.
type Request struct {
	RequestID  int64           `json:"request_id"`
	Channel    string          `json:"channel"`
	Action     dispatch.Action `json:"action"`
	Address    string          `json:"address,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// Token returns the correlation token for the request.
func (r Request) Token() dispatch.Token {
	return dispatch.Token{RequestID: r.RequestID, Channel: r.Channel}
}

// Args are the validated, typed parameters of a request.
type Args struct {
	On           bool
	Kelvin       int
	Percent      int
	Hue          int
	Saturation   int
	Value        int
	TransitionMs int
	Child        int
}

// Dispatcher is the set of dispatch operations a request can map to.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Discover(tok dispatch.Token) (string, error)
	LookUp(address string, tok dispatch.Token) (string, error)
	CreateDeviceObject(address string, tok dispatch.Token) (string, error)
	SetPower(address string, on bool, tok dispatch.Token) (string, error)
	SetColorTemp(address string, tok dispatch.Token, kelvin, transitionMs int) (string, error)
	SetBrightness(address string, tok dispatch.Token, percent, transitionMs int) (string, error)
	SetHSV(address string, tok dispatch.Token, hue, saturation, value, transitionMs int) (string, error)
	SetChildPower(address string, tok dispatch.Token, child int, on bool) (string, error)
}

// Validate checks the request and returns its typed parameters. All
// problems are reported together.
func (r Request) Validate() (Args, error) {
	v := &validator{params: r.Parameters}

	v.channel(r.Channel)

	var args Args
	switch r.Action {
	case dispatch.ActionDiscover:
	case dispatch.ActionLookUp, dispatch.ActionCreateDevice:
		v.address(r.Address)
	case dispatch.ActionSetPower:
		v.address(r.Address)
		args.On = v.boolean(ParamOn)
	case dispatch.ActionSetColorTemp:
		v.address(r.Address)
		args.Kelvin = v.integer(ParamKelvin, MinKelvin, MaxKelvin, true)
		args.TransitionMs = v.integer(ParamTransitionMs, 0, math.MaxInt32, false)
	case dispatch.ActionSetBrightness:
		v.address(r.Address)
		args.Percent = v.integer(ParamPercent, 0, MaxPercent, true)
		args.TransitionMs = v.integer(ParamTransitionMs, 0, math.MaxInt32, false)
	case dispatch.ActionSetHSV:
		v.address(r.Address)
		args.Hue = v.integer(ParamHue, 0, MaxHue, true)
		args.Saturation = v.integer(ParamSaturation, 0, MaxSaturation, true)
		args.Value = v.integer(ParamValue, 0, MaxValue, true)
		args.TransitionMs = v.integer(ParamTransitionMs, 0, math.MaxInt32, false)
	case dispatch.ActionSetChildPower:
		v.address(r.Address)
		args.Child = v.integer(ParamChild, 0, math.MaxInt32, true)
		args.On = v.boolean(ParamOn)
	case "":
		v.fail("action is required")
	default:
		return Args{}, fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
	}

	if err := v.err(); err != nil {
		return Args{}, err
	}
	return args, nil
}

// Submit validates r and queues the matching operation on d.
func Submit(d Dispatcher, r Request) (string, error) {
	args, err := r.Validate()
	if err != nil {
		return "", err
	}

	tok := r.Token()
	switch r.Action {
	case dispatch.ActionDiscover:
		return d.Discover(tok)
	case dispatch.ActionLookUp:
		return d.LookUp(r.Address, tok)
	case dispatch.ActionCreateDevice:
		return d.CreateDeviceObject(r.Address, tok)
	case dispatch.ActionSetPower:
		return d.SetPower(r.Address, args.On, tok)
	case dispatch.ActionSetColorTemp:
		return d.SetColorTemp(r.Address, tok, args.Kelvin, args.TransitionMs)
	case dispatch.ActionSetBrightness:
		return d.SetBrightness(r.Address, tok, args.Percent, args.TransitionMs)
	case dispatch.ActionSetHSV:
		return d.SetHSV(r.Address, tok, args.Hue, args.Saturation, args.Value, args.TransitionMs)
	case dispatch.ActionSetChildPower:
		return d.SetChildPower(r.Address, tok, args.Child, args.On)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
	}
}

// IsValidationError reports whether err came from request validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnknownAction)
}

type validator struct {
	params   map[string]any
	problems []string
}

func (v *validator) fail(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(v.problems, "; "))
}

// channel rejects blank channels and those that cannot be a topic suffix.
func (v *validator) channel(ch string) {
	switch {
	case strings.TrimSpace(ch) == "":
		v.fail("channel is required")
	case strings.ContainsAny(ch, channelForbidden):
		v.fail("channel must not contain '+', '#' or NUL")
	}
}

func (v *validator) address(addr string) {
	if strings.TrimSpace(addr) == "" {
		v.fail("address is required")
	}
}

func (v *validator) boolean(name string) bool {
	raw, ok := v.params[name]
	if !ok {
		v.fail("%s is required", name)
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		v.fail("%s must be a boolean", name)
	}
	return b
}

func (v *validator) integer(name string, minimum, maximum int, required bool) int {
	raw, ok := v.params[name]
	if !ok || raw == nil {
		if required {
			v.fail("%s is required", name)
		}
		return 0
	}

	n, ok := toInt(raw)
	if !ok {
		v.fail("%s must be an integer", name)
		return 0
	}
	if n < minimum || n > maximum {
		v.fail("%s must be between %d and %d", name, minimum, maximum)
		return 0
	}
	return n
}

// toInt accepts the numeric forms produced by encoding/json and by Go callers.
func toInt(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(i)
	default:
		return 0, false
	}
}
