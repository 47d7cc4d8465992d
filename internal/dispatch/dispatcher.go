package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

const (
	// DefaultPollInterval bounds how long the worker waits for a job
	// before re-checking whether it should stop.
	DefaultPollInterval = time.Second

	// sinkTimeout bounds each notifier, recorder and snapshot sink call.
	sinkTimeout = 5 * time.Second
)

// Logger is the logging interface used by the dispatcher.
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

// Options holds configuration for creating a Dispatcher.
type Options struct {
	// Controller performs device I/O. Required.
	Controller device.Controller

	// Notifier delivers responses. Required; use Notifiers to fan out.
	Notifier Notifier

	// Registry is shared with readers such as the API. A new one is
	// created if nil.
	Registry *device.Registry

	// Recorders and SnapshotSinks observe finished jobs. Optional.
	Recorders     []Recorder
	SnapshotSinks []SnapshotSink

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// IOTimeout bounds each job's device calls. Zero means no limit.
	IOTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

// Dispatcher accepts device operations from any goroutine and runs them,
// one at a time and in submission order, on a single worker goroutine.
//
// Thread Safety: All methods are safe for concurrent use.
type Dispatcher struct {
	rt           *Runtime
	queue        *jobQueue
	notifier     Notifier
	recorders    []Recorder
	sinks        []SnapshotSink
	pollInterval time.Duration
	ioTimeout    time.Duration
	logger       Logger
	now          func() time.Time
	newID        func() string

	// submitMu orders submissions against the running flag so that no
	// job is queued after the worker has drained the queue.
	submitMu sync.RWMutex
	running  atomic.Bool
	state    atomic.Int32

	lifecycleMu sync.Mutex
	started     bool
	stopOnce    sync.Once
	done        chan struct{}
	stopped     chan struct{}

	submitted atomic.Uint64
	rejected  atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	abandoned atomic.Uint64
}

// New creates a dispatcher. Call Start to launch the worker.
func New(opts Options) (*Dispatcher, error) {
	if opts.Controller == nil {
		return nil, ErrNoController
	}
	if opts.Notifier == nil {
		return nil, ErrNoNotifier
	}

	registry := opts.Registry
	if registry == nil {
		registry = device.NewRegistry()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	d := &Dispatcher{
		rt:           &Runtime{Controller: opts.Controller, Registry: registry},
		queue:        newJobQueue(),
		notifier:     opts.Notifier,
		recorders:    opts.Recorders,
		sinks:        opts.SnapshotSinks,
		pollInterval: poll,
		ioTimeout:    opts.IOTimeout,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	d.running.Store(true)
	d.state.Store(int32(StateRunning))
	return d, nil
}

// Start launches the worker goroutine. Jobs submitted before Start wait in
// the queue.
func (d *Dispatcher) Start() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}
	if !d.running.Load() {
		return ErrStopped
	}
	d.started = true

	go d.run()

	d.logger.Info("dispatcher started", "poll_interval", d.pollInterval.String(), "io_timeout", d.ioTimeout.String())
	return nil
}

// Registry returns the device registry the worker writes to.
func (d *Dispatcher) Registry() *device.Registry {
	return d.rt.Registry
}

// State returns the worker lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		State:      d.State(),
		QueueDepth: d.queue.Len(),
		Submitted:  d.submitted.Load(),
		Rejected:   d.rejected.Load(),
		Executed:   d.executed.Load(),
		Failed:     d.failed.Load(),
		Abandoned:  d.abandoned.Load(),
	}
}

// Submit enqueues job and returns its ID. It never performs device I/O and
// only fails with ErrStopped once shutdown has begun.
func (d *Dispatcher) Submit(job Job) (string, error) {
	if job == nil {
		return "", ErrNilJob
	}

	d.submitMu.RLock()
	defer d.submitMu.RUnlock()

	if !d.running.Load() {
		d.rejected.Add(1)
		return "", ErrStopped
	}

	env := envelope{id: d.newID(), job: job, queuedAt: d.now()}
	d.queue.Push(env)
	d.submitted.Add(1)

	d.logger.Debug("job queued",
		"job_id", env.id,
		"action", job.Kind(),
		"address", job.Address(),
		"request_id", job.Token().RequestID)
	return env.id, nil
}

// Discover queues a network scan. The response carries every device found.
func (d *Dispatcher) Discover(tok Token) (string, error) {
	return d.Submit(DiscoverJob{Target{Request: tok}})
}

// LookUp queues a refresh of a registered device.
func (d *Dispatcher) LookUp(address string, tok Token) (string, error) {
	return d.Submit(LookUpJob{Target{Request: tok, Device: address}})
}

// CreateDeviceObject queues a connection to address that registers the
// device without a full scan.
func (d *Dispatcher) CreateDeviceObject(address string, tok Token) (string, error) {
	return d.Submit(CreateDeviceJob{Target{Request: tok, Device: address}})
}

// SetPower queues switching a registered device on or off.
func (d *Dispatcher) SetPower(address string, on bool, tok Token) (string, error) {
	return d.Submit(SetPowerJob{Target: Target{Request: tok, Device: address}, On: on})
}

// SetColorTemp queues a colour temperature change.
func (d *Dispatcher) SetColorTemp(address string, tok Token, kelvin, transitionMs int) (string, error) {
	return d.Submit(SetColorTempJob{
		Target:       Target{Request: tok, Device: address},
		Kelvin:       kelvin,
		TransitionMs: transitionMs,
	})
}

// SetBrightness queues a brightness change.
func (d *Dispatcher) SetBrightness(address string, tok Token, percent, transitionMs int) (string, error) {
	return d.Submit(SetBrightnessJob{
		Target:       Target{Request: tok, Device: address},
		Percent:      percent,
		TransitionMs: transitionMs,
	})
}

// SetHSV queues a colour change.
func (d *Dispatcher) SetHSV(address string, tok Token, hue, saturation, value, transitionMs int) (string, error) {
	return d.Submit(SetHSVJob{
		Target:       Target{Request: tok, Device: address},
		Hue:          hue,
		Saturation:   saturation,
		Value:        value,
		TransitionMs: transitionMs,
	})
}

// SetChildPower queues switching one socket of a strip.
func (d *Dispatcher) SetChildPower(address string, tok Token, child int, on bool) (string, error) {
	return d.Submit(SetChildPowerJob{
		Target: Target{Request: tok, Device: address},
		Child:  child,
		On:     on,
	})
}

// Shutdown stops accepting requests and blocks until the worker has
// stopped. The job in flight, if any, runs to completion; queued jobs are
// answered with DISPATCHER_STOPPED. Further calls only wait.
func (d *Dispatcher) Shutdown() {
	_ = d.ShutdownContext(context.Background())
}

// ShutdownContext is Shutdown with a bound on the wait. If ctx ends first
// the worker still stops once its current job returns.
func (d *Dispatcher) ShutdownContext(ctx context.Context) error {
	d.beginShutdown()

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: waiting for worker: %w", ctx.Err())
	}
}

// Stopped is closed once the worker has stopped.
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.stopped
}

func (d *Dispatcher) beginShutdown() {
	d.stopOnce.Do(func() {
		d.lifecycleMu.Lock()
		defer d.lifecycleMu.Unlock()

		d.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

		d.submitMu.Lock()
		d.running.Store(false)
		d.submitMu.Unlock()

		close(d.done)

		d.logger.Info("dispatcher stopping", "queued", d.queue.Len())

		// Without a worker, a stand-in goroutine answers the queued jobs so
		// notifiers never run on the caller or under lifecycleMu.
		if !d.started {
			go d.finish()
		}
	})
}
