package device

import (
	"sort"
	"sync"
	"time"
)

// Logger is the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type entry struct {
	handle   Handle
	snapshot Snapshot
}

// Registry maps device addresses to the last handle and snapshot obtained
// for them.
//
// It acts as the bridge's in-memory device cache:
//   - Handles carry the device's I/O and never leave the dispatch worker
//   - Snapshots are immutable copies any goroutine can read
//
// Thread Safety:
//   - Put and Handle belong to the dispatch worker, the single writer.
//   - Snapshot, Snapshots and Len may be called from any goroutine and
//     return deep copies guarded by an RWMutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Put stores h under its address together with a snapshot built from its
// cached state, replacing any previous entry.
//
// Parameters:
//   - h: Handle whose accessors reflect the last Update
//
// Returns:
//   - Snapshot: The stored snapshot (a copy the caller may keep)
func (r *Registry) Put(h Handle) Snapshot {
	snap := NewSnapshot(h, r.now())

	r.mu.Lock()
	_, existed := r.entries[snap.Address]
	r.entries[snap.Address] = entry{handle: h, snapshot: snap}
	r.mu.Unlock()

	if !existed {
		r.logger.Info("device registered", "address", snap.Address, "model", snap.Model, "type", snap.DeviceType)
	} else {
		r.logger.Debug("device refreshed", "address", snap.Address, "power_state", snap.PowerState)
	}
	return snap.Clone()
}

// Handle returns the handle stored for address. Handles must only be used
// from the dispatch worker.
func (r *Registry) Handle(address string) (Handle, error) {
	r.mu.RLock()
	e, ok := r.entries[address]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownDevice
	}
	return e.handle, nil
}

// Snapshot returns a copy of the last snapshot for address.
//
// Returns:
//   - Snapshot: Deep copy, safe to modify
//   - error: ErrUnknownDevice if address was never stored
func (r *Registry) Snapshot(address string) (Snapshot, error) {
	r.mu.RLock()
	e, ok := r.entries[address]
	r.mu.RUnlock()

	if !ok {
		return Snapshot{}, ErrUnknownDevice
	}
	return e.snapshot.Clone(), nil
}

// Snapshots returns copies of every snapshot, ordered by address.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
