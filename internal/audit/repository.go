package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// timeFormat is fixed-width so timestamps sort lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// JobLog is one row of the job log.
type JobLog struct {
	JobID        string         `json:"job_id"`
	RequestID    int64          `json:"request_id"`
	Channel      string         `json:"channel"`
	Action       string         `json:"action"`
	Address      string         `json:"address,omitempty"`
	Child        *int           `json:"child,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	Status       string         `json:"status"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   *int64         `json:"duration_ms,omitempty"`
}

// Filter controls which job logs to return.
type Filter struct {
	Action  string // optional: filter by action (set_power, discover, ...)
	Address string // optional: filter by device address
	Channel string // optional: filter by response channel
	Status  string // optional: succeeded, failed or abandoned
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains the paginated job log results.
type ListResult struct {
	Jobs   []JobLog `json:"jobs"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Repository defines the interface for job log operations.
type Repository interface {
	Create(ctx context.Context, log *JobLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores job logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ Repository        = (*SQLiteRepository)(nil)
	_ dispatch.Recorder = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository creates a new job log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record stores a finished dispatch job.
func (r *SQLiteRepository) Record(ctx context.Context, rec dispatch.JobRecord) error {
	log := &JobLog{
		JobID:        rec.JobID,
		RequestID:    rec.Token.RequestID,
		Channel:      rec.Token.Channel,
		Action:       string(rec.Action),
		Address:      rec.Address,
		Params:       rec.Params,
		Status:       rec.Status,
		ErrorCode:    string(rec.ErrorCode),
		ErrorMessage: rec.ErrorMessage,
		SubmittedAt:  rec.SubmittedAt,
	}
	if child, ok := rec.Params["child"].(int); ok {
		log.Child = &child
	}
	if !rec.CompletedAt.IsZero() {
		completed := rec.CompletedAt
		ms := rec.Duration.Milliseconds()
		log.CompletedAt = &completed
		log.DurationMs = &ms
	}
	return r.Create(ctx, log)
}

// Create inserts a job log entry. The JobID and SubmittedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *JobLog) error {
	if log.JobID == "" {
		log.JobID = uuid.NewString()
	}
	if log.SubmittedAt.IsZero() {
		log.SubmittedAt = time.Now().UTC()
	}
	if log.Status == "" {
		log.Status = dispatch.StatusSucceeded
	}

	params := "{}"
	if len(log.Params) > 0 {
		b, err := json.Marshal(log.Params)
		if err != nil {
			return fmt.Errorf("marshalling job params: %w", err)
		}
		params = string(b)
	}

	var completedAt any
	if log.CompletedAt != nil {
		completedAt = log.CompletedAt.UTC().Format(timeFormat)
	}
	var child, duration any
	if log.Child != nil {
		child = *log.Child
	}
	if log.DurationMs != nil {
		duration = *log.DurationMs
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_log (job_id, request_id, channel, action, address, child, params,
		                      status, error_code, error_message, submitted_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.JobID, log.RequestID, log.Channel, log.Action, log.Address, child, params,
		log.Status, nullableString(log.ErrorCode), nullableString(log.ErrorMessage),
		log.SubmittedAt.UTC().Format(timeFormat), completedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("inserting job log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns job logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", filter.Action},
		{"address", filter.Address},
		{"channel", filter.Channel},
		{"status", filter.Status},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM job_log %s", where) //nolint:gosec // WHERE built from fixed column names
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting job logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed column names
		`SELECT job_id, request_id, channel, action, address, child, params, status,
		        error_code, error_message, submitted_at, completed_at, duration_ms
		 FROM job_log %s ORDER BY submitted_at DESC, job_id LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying job logs: %w", err)
	}
	defer rows.Close()

	jobs := []JobLog{}
	for rows.Next() {
		log, err := scanJobLog(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job logs: %w", err)
	}

	return &ListResult{
		Jobs:   jobs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanJobLog(rows *sql.Rows) (JobLog, error) {
	var log JobLog
	var child, duration sql.NullInt64
	var errorCode, errorMessage, completedAt sql.NullString
	var params, submittedAt string

	if err := rows.Scan(&log.JobID, &log.RequestID, &log.Channel, &log.Action, &log.Address,
		&child, &params, &log.Status, &errorCode, &errorMessage,
		&submittedAt, &completedAt, &duration); err != nil {
		return JobLog{}, fmt.Errorf("scanning job log: %w", err)
	}

	if child.Valid {
		c := int(child.Int64)
		log.Child = &c
	}
	if duration.Valid {
		d := duration.Int64
		log.DurationMs = &d
	}
	log.ErrorCode = errorCode.String
	log.ErrorMessage = errorMessage.String

	if params != "" && params != "{}" {
		var p map[string]any
		if json.Unmarshal([]byte(params), &p) == nil {
			log.Params = p
		}
	}

	t, err := time.Parse(timeFormat, submittedAt)
	if err != nil {
		return JobLog{}, fmt.Errorf("parsing job log timestamp %q: %w", submittedAt, err)
	}
	log.SubmittedAt = t

	if completedAt.Valid {
		t, err := time.Parse(timeFormat, completedAt.String)
		if err != nil {
			return JobLog{}, fmt.Errorf("parsing job log timestamp %q: %w", completedAt.String, err)
		}
		log.CompletedAt = &t
	}
	return log, nil
}
