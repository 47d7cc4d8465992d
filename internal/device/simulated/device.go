package simulated

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
)

// physical is the live state of one simulated device.
type physical struct {
	mu sync.Mutex

	address   string
	id        string
	alias     string
	model     string
	typ       device.Type
	mac       string
	hwVersion string
	fwVersion string

	on         bool
	brightness int
	colorTemp  int
	hue        int
	saturation int

	// lastTransition is the transition of the most recent light change.
	lastTransition int

	children []*physicalChild
}

type physicalChild struct {
	id    string
	alias string
	on    bool
}

// state is an immutable copy of physical used to fill a handle's cache.
type state struct {
	id, alias, model, mac, hwVersion, fwVersion string
	typ                                         device.Type

	on         bool
	brightness int
	colorTemp  int
	hue        int
	saturation int

	children []physicalChild
}

func newPhysical(dc config.SimulatedDeviceConfig) *physical {
	typ := parseType(dc.Type)

	p := &physical{
		address:    dc.Address,
		id:         dc.ID,
		alias:      dc.Alias,
		model:      dc.Model,
		typ:        typ,
		mac:        dc.MAC,
		hwVersion:  dc.HWVersion,
		fwVersion:  dc.FWVersion,
		on:         dc.On,
		brightness: 100,
	}

	if p.id == "" {
		p.id = "sim-" + strings.NewReplacer(".", "", ":", "").Replace(dc.Address)
	}
	if p.alias == "" {
		p.alias = dc.Address
	}
	if p.model == "" {
		p.model = defaultModel(typ)
	}
	if p.hwVersion == "" {
		p.hwVersion = "1.0"
	}
	if p.fwVersion == "" {
		p.fwVersion = "1.0.0 Build 000000 Rel.000000"
	}
	if p.mac == "" {
		p.mac = "00:00:00:00:00:00"
	}
	if typ == device.TypeBulb {
		p.colorTemp = 2700
	}

	if typ == device.TypeStrip {
		for i, alias := range dc.Children {
			p.children = append(p.children, &physicalChild{
				id:    fmt.Sprintf("%s%02d", p.id, i),
				alias: alias,
			})
		}
	}
	return p
}

func parseType(s string) device.Type {
	switch device.Type(strings.ToLower(s)) {
	case device.TypePlug, "":
		return device.TypePlug
	case device.TypeStrip:
		return device.TypeStrip
	case device.TypeBulb:
		return device.TypeBulb
	case device.TypeDimmer:
		return device.TypeDimmer
	default:
		return device.TypeUnknown
	}
}

func defaultModel(t device.Type) string {
	switch t {
	case device.TypeStrip:
		return "HS300(US)"
	case device.TypeBulb:
		return "KL130(US)"
	case device.TypeDimmer:
		return "HS220(US)"
	default:
		return "HS103(US)"
	}
}

func (p *physical) snapshot() state {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := state{
		id:         p.id,
		alias:      p.alias,
		model:      p.model,
		mac:        p.mac,
		hwVersion:  p.hwVersion,
		fwVersion:  p.fwVersion,
		typ:        p.typ,
		on:         p.on,
		brightness: p.brightness,
		colorTemp:  p.colorTemp,
		hue:        p.hue,
		saturation: p.saturation,
	}
	for _, c := range p.children {
		s.children = append(s.children, *c)
	}
	return s
}

func (p *physical) setPower(on bool) device.Ack {
	p.mu.Lock()
	p.on = on
	p.mu.Unlock()
	return relayAck()
}

func (p *physical) setChildPower(index int, on bool) device.Ack {
	p.mu.Lock()
	p.children[index].on = on
	anyOn := false
	for _, c := range p.children {
		anyOn = anyOn || c.on
	}
	p.on = anyOn
	p.mu.Unlock()
	return relayAck()
}

func (p *physical) applyLightState(ls device.LightState) (device.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.typ {
	case device.TypeBulb:
	case device.TypeDimmer:
		if ls.ColorTemp != nil || ls.Hue != nil || ls.Saturation != nil || ls.Value != nil {
			return nil, fmt.Errorf("%w: %s has no colour control", device.ErrUnsupported, p.model)
		}
	default:
		return nil, fmt.Errorf("%w: %s is not a light", device.ErrUnsupported, p.model)
	}

	if ls.ColorTemp != nil {
		p.colorTemp = *ls.ColorTemp
	}
	if ls.Brightness != nil {
		p.brightness = *ls.Brightness
	}
	if ls.Hue != nil {
		p.hue = *ls.Hue
	}
	if ls.Saturation != nil {
		p.saturation = *ls.Saturation
	}
	if ls.Value != nil {
		p.brightness = *ls.Value
	}
	p.lastTransition = ls.TransitionMs
	p.on = true

	return device.Ack{
		"smartlife.iot.smartbulb.lightingservice": map[string]any{
			"transition_light_state": map[string]any{
				"on_off":     1,
				"mode":       "normal",
				"hue":        p.hue,
				"saturation": p.saturation,
				"color_temp": p.colorTemp,
				"brightness": p.brightness,
				"transition": p.lastTransition,
				"err_code":   0,
			},
		},
	}, nil
}

func relayAck() device.Ack {
	return device.Ack{
		"system": map[string]any{
			"set_relay_state": map[string]any{"err_code": 0},
		},
	}
}
