package device

import "time"

// Snapshot is the caller-visible state of a device at one moment.
type Snapshot struct {
	Address    string          `json:"address"`
	ID         string          `json:"id"`
	Alias      string          `json:"alias,omitempty"`
	PowerState bool            `json:"power_state"`
	Model      string          `json:"model"`
	DeviceType Type            `json:"device_type"`
	Brightness *int            `json:"brightness,omitempty"`
	SysInfo    Info            `json:"sysinfo"`
	HWInfo     Info            `json:"hwinfo"`
	Children   []ChildSnapshot `json:"children,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ChildSnapshot is the state of one child socket.
type ChildSnapshot struct {
	Index      int    `json:"index"`
	ID         string `json:"id"`
	Alias      string `json:"alias"`
	PowerState bool   `json:"power_state"`
}

// NewSnapshot reads the cached accessors of h. It performs no I/O.
func NewSnapshot(h Handle, at time.Time) Snapshot {
	s := Snapshot{
		Address:    h.Address(),
		ID:         h.DeviceID(),
		Alias:      h.Alias(),
		PowerState: h.IsOn(),
		Model:      h.Model(),
		DeviceType: h.DeviceType(),
		SysInfo:    copyInfo(h.SysInfo()),
		HWInfo:     copyInfo(h.HWInfo()),
		UpdatedAt:  at.UTC(),
	}

	if d, ok := h.(Dimmable); ok {
		b := d.Brightness()
		s.Brightness = &b
	}

	for i, c := range h.Children() {
		s.Children = append(s.Children, ChildSnapshot{
			Index:      i,
			ID:         c.ID(),
			Alias:      c.Alias(),
			PowerState: c.IsOn(),
		})
	}
	return s
}

// Clone returns a deep copy so callers can't mutate registry state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.SysInfo = copyInfo(s.SysInfo)
	out.HWInfo = copyInfo(s.HWInfo)
	if s.Brightness != nil {
		b := *s.Brightness
		out.Brightness = &b
	}
	if s.Children != nil {
		out.Children = append([]ChildSnapshot(nil), s.Children...)
	}
	return out
}

// ChildrenOn counts child sockets that are switched on.
func (s Snapshot) ChildrenOn() int {
	n := 0
	for _, c := range s.Children {
		if c.PowerState {
			n++
		}
	}
	return n
}

func copyInfo(in Info) Info {
	if in == nil {
		return nil
	}
	out := make(Info, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = copyValue(vv)
		}
		return m
	case Info:
		return copyInfo(t)
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = copyValue(vv)
		}
		return s
	default:
		return v
	}
}
