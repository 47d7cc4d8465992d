package dispatch

import "errors"

// Domain errors for the dispatch package.
var (
	// ErrStopped is returned when a request is submitted after shutdown
	// has begun.
	ErrStopped = errors.New("dispatch: dispatcher stopped")

	// ErrAlreadyStarted is returned by Start when the worker is running.
	ErrAlreadyStarted = errors.New("dispatch: dispatcher already started")

	// ErrNoController is returned by New without a device controller.
	ErrNoController = errors.New("dispatch: device controller is required")

	// ErrNoNotifier is returned by New without a response notifier.
	ErrNoNotifier = errors.New("dispatch: response notifier is required")

	// ErrNilJob is returned by Submit for a nil job.
	ErrNilJob = errors.New("dispatch: nil job")

	// ErrJobPanicked wraps a panic recovered while running a job.
	ErrJobPanicked = errors.New("dispatch: job panicked")
)
