package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
)

// run is the worker loop.
func (d *Dispatcher) run() {
	for d.running.Load() {
		env, ok := d.queue.Take(d.pollInterval, d.done)
		if !ok {
			continue
		}
		d.execute(env)
	}
	d.finish()
}

// finish answers every job left in the queue and marks the worker stopped.
func (d *Dispatcher) finish() {
	for _, env := range d.queue.DrainAll() {
		d.abandon(env)
	}
	d.state.Store(int32(StateStopped))
	close(d.stopped)

	d.logger.Info("dispatcher stopped",
		"executed", d.executed.Load(),
		"failed", d.failed.Load(),
		"abandoned", d.abandoned.Load())
}

func (d *Dispatcher) execute(env envelope) {
	job := env.job
	started := d.now()

	ctx, cancel := d.jobContext()
	data, err := d.runJob(ctx, job)
	cancel()

	touched := d.rt.reset()
	completed := d.now()
	d.executed.Add(1)

	resp := Response{
		RequestID: job.Token().RequestID,
		JobID:     env.id,
		Action:    job.Kind(),
		Address:   job.Address(),
		Timestamp: completed.UTC(),
	}
	rec := d.record(env, completed)

	if err != nil {
		d.failed.Add(1)
		code := CodeFor(err)
		resp.Error = &ErrorInfo{Code: code, Message: err.Error()}
		rec.Status = StatusFailed
		rec.ErrorCode = code
		rec.ErrorMessage = err.Error()
		// Partial refreshes stay in the registry but are not published.
		touched = nil

		d.logger.Warn("job failed",
			"job_id", env.id,
			"action", job.Kind(),
			"address", job.Address(),
			"request_id", resp.RequestID,
			"code", code,
			"error", err)
	} else {
		resp.Success = true
		resp.Data = data
		rec.Status = StatusSucceeded

		d.logger.Debug("job completed",
			"job_id", env.id,
			"action", job.Kind(),
			"address", job.Address(),
			"duration_ms", completed.Sub(started).Milliseconds())
	}

	d.deliver(job.Token(), resp)
	d.observe(rec, touched)
}

func (d *Dispatcher) abandon(env envelope) {
	d.abandoned.Add(1)

	job := env.job
	now := d.now()
	resp := Failure(job.Token(), job.Kind(), job.Address(), CodeDispatcherStopped, ErrStopped.Error())
	resp.JobID = env.id
	resp.Timestamp = now.UTC()

	rec := d.record(env, now)
	rec.Status = StatusAbandoned
	rec.ErrorCode = CodeDispatcherStopped
	rec.ErrorMessage = ErrStopped.Error()

	d.logger.Warn("job abandoned at shutdown",
		"job_id", env.id,
		"action", job.Kind(),
		"request_id", resp.RequestID)

	d.deliver(job.Token(), resp)
	d.observe(rec, nil)
}

func (d *Dispatcher) jobContext() (context.Context, context.CancelFunc) {
	if d.ioTimeout > 0 {
		return context.WithTimeout(context.Background(), d.ioTimeout)
	}
	return context.WithCancel(context.Background())
}

// runJob contains panics so one job can never stop the worker.
func (d *Dispatcher) runJob(ctx context.Context, job Job) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx, d.rt)
}

func (d *Dispatcher) record(env envelope, completed time.Time) JobRecord {
	job := env.job
	return JobRecord{
		JobID:       env.id,
		Token:       job.Token(),
		Action:      job.Kind(),
		Address:     job.Address(),
		Params:      Params(job),
		SubmittedAt: env.queuedAt.UTC(),
		CompletedAt: completed.UTC(),
		Duration:    completed.Sub(env.queuedAt),
	}
}

func (d *Dispatcher) deliver(tok Token, resp Response) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	err := safeCall(func() error { return d.notifier.Notify(ctx, tok.Channel, resp) })
	if err != nil {
		d.logger.Error("response delivery failed",
			"job_id", resp.JobID,
			"channel", tok.Channel,
			"request_id", resp.RequestID,
			"error", err)
	}
}

func (d *Dispatcher) observe(rec JobRecord, snaps []device.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	for _, r := range d.recorders {
		if err := safeCall(func() error { return r.Record(ctx, rec) }); err != nil {
			d.logger.Error("job record failed", "job_id", rec.JobID, "error", err)
		}
	}

	if len(snaps) == 0 {
		return
	}
	for _, s := range d.sinks {
		if err := safeCall(func() error { return s.StoreSnapshots(ctx, snaps) }); err != nil {
			d.logger.Error("snapshot sink failed", "job_id", rec.JobID, "error", err)
		}
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
