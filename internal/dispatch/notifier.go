package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

// Notifier delivers a response to the channel named in the request token.
// It is called exactly once per accepted request, from the worker goroutine
// (or, when Shutdown runs before Start, from the goroutine that answers the
// queued jobs in its place). Never from a submitting caller.
type Notifier interface {
	Notify(ctx context.Context, channel string, resp Response) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, channel string, resp Response) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, channel string, resp Response) error {
	return f(ctx, channel, resp)
}

// Notifiers delivers to every notifier in order. A failing notifier does
// not stop delivery to the rest; the errors are joined.
type Notifiers []Notifier

// Notify delivers resp to each notifier.
func (ns Notifiers) Notify(ctx context.Context, channel string, resp Response) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, channel, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Job outcome status values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// JobRecord describes one finished job.
type JobRecord struct {
	JobID        string
	Token        Token
	Action       Action
	Address      string
	Params       map[string]any
	Status       string
	ErrorCode    ErrorCode
	ErrorMessage string
	SubmittedAt  time.Time
	CompletedAt  time.Time
	Duration     time.Duration
}

// Recorder receives a record of every finished or abandoned job.
type Recorder interface {
	Record(ctx context.Context, rec JobRecord) error
}

// SnapshotSink receives the registry snapshots a successful job produced.
// A failed job publishes none, even if it refreshed some devices first.
type SnapshotSink interface {
	StoreSnapshots(ctx context.Context, snaps []device.Snapshot) error
}
