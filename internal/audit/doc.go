// Package audit keeps the job_log table: one row for every dispatch job
// that finished, failed or was abandoned at shutdown.
//
// SQLiteRepository implements dispatch.Recorder, so it can be handed
// straight to the dispatcher. The API reads it back through List.
package audit
