package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so recorded_at sorts lexically.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// HistoryEntry is one recorded snapshot.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	Address    string    `json:"address"`
	Snapshot   Snapshot  `json:"snapshot"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryRepository stores snapshots over time.
type HistoryRepository interface {
	Record(ctx context.Context, snap Snapshot) error
	GetHistory(ctx context.Context, address string, limit int) ([]HistoryEntry, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// snapshot_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository on an open database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts snap, timestamped with its UpdatedAt (or now if unset).
func (r *SQLiteHistoryRepository) Record(ctx context.Context, snap Snapshot) error {
	if snap.Address == "" {
		return ErrInvalidAddress
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	at := snap.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshot_history (address, alias, device_type, is_on, snapshot, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Address,
		snap.Alias,
		string(snap.DeviceType),
		boolToInt(snap.PowerState),
		string(body),
		at.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot history: %w", err)
	}
	return nil
}

// StoreSnapshots records each snapshot in order.
func (r *SQLiteHistoryRepository) StoreSnapshots(ctx context.Context, snaps []Snapshot) error {
	for _, snap := range snaps {
		if err := r.Record(ctx, snap); err != nil {
			return fmt.Errorf("recording %s: %w", snap.Address, err)
		}
	}
	return nil
}

// GetHistory returns up to limit entries for address, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, address string, limit int) ([]HistoryEntry, error) {
	if address == "" {
		return nil, ErrInvalidAddress
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, snapshot, recorded_at
		 FROM snapshot_history
		 WHERE address = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		address,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var body, recordedAt string
		if err := rows.Scan(&e.ID, &e.Address, &body, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot history: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &e.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
		}
		e.RecordedAt, err = time.Parse(historyTimeFormat, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many were removed.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM snapshot_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshot history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
