// Package dispatch is the asynchronous command queue of the Kasa bridge.
//
// Callers submit device operations through a Dispatcher. Each operation
// builds an immutable Job, appends it to an unbounded FIFO queue and
// returns at once with a job ID. A single worker goroutine takes jobs in
// order and runs them against the device.Controller, so at most one device
// call is in flight at any moment.
//
// When a job finishes the worker delivers exactly one Response, tagged with
// the caller's Token, to the configured Notifier. Failures never escape the
// worker: unknown addresses, device errors and panics all become failure
// responses with an ErrorCode.
//
// Lifecycle:
//
//	d, err := dispatch.New(dispatch.Options{Controller: ctrl, Notifier: n})
//	if err != nil { ... }
//	d.Start()
//	jobID, err := d.SetPower("192.168.1.20", true, dispatch.Token{RequestID: 7, Channel: "ui"})
//	...
//	d.Shutdown() // blocks until the worker has stopped
//
// Jobs still queued when the worker stops receive a DISPATCHER_STOPPED
// response. Submissions after Shutdown fail with ErrStopped.
package dispatch
