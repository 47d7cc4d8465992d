// Package device defines how the bridge talks to Kasa devices and what it
// remembers about them.
//
// # Control collaborator
//
// Controller discovers devices and returns Handles. A Handle wraps one
// physical device: Update refreshes its cached state over the network,
// the accessors (IsOn, Model, SysInfo...) read that cache without I/O,
// and the mutators (TurnOn, SetLightState...) change the device.
// Strips expose their sockets as Children.
//
// Handles are not safe for concurrent use. The dispatch worker is the
// only goroutine that ever calls them.
//
// # Registry
//
//	┌────────────────┐  Put (worker only)   ┌──────────────────────────┐
//	│ dispatch worker│─────────────────────▶│ Registry                 │
//	└────────────────┘                      │ address → Handle+Snapshot│
//	┌────────────────┐  Snapshot/Snapshots  │ sync.RWMutex             │
//	│ API, health    │◀─────────────────────┤                          │
//	└────────────────┘  (copies)            └──────────────────────────┘
//
// An address is present only after a successful discovery or refresh in
// this process; lookups of unknown addresses report ErrUnknownDevice and
// never create placeholders.
//
// # History
//
// SQLiteHistoryRepository keeps every Snapshot the worker records in the
// snapshot_history table so recent device state survives restarts.
package device
