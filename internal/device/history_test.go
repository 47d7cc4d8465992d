package device_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-kasa/migrations"
)

func openHistoryDB(t *testing.T) *device.SQLiteHistoryRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "history.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return device.NewSQLiteHistoryRepository(db.DB)
}

func TestHistory_RecordAndGet(t *testing.T) {
	repo := openHistoryDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		snap := device.Snapshot{
			Address:    "10.0.0.1",
			ID:         "plug-1",
			PowerState: i%2 == 0,
			DeviceType: device.TypePlug,
			SysInfo:    device.Info{"seq": float64(i)},
			UpdatedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := repo.Record(ctx, snap); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, device.Snapshot{Address: "10.0.0.2", UpdatedAt: base}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "10.0.0.1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Snapshot.SysInfo["seq"] != float64(2) {
		t.Errorf("entries[0] seq = %v, want 2", entries[0].Snapshot.SysInfo["seq"])
	}
	if !entries[0].RecordedAt.Equal(base.Add(2 * time.Millisecond)) {
		t.Errorf("RecordedAt = %v, want %v", entries[0].RecordedAt, base.Add(2*time.Millisecond))
	}

	limited, err := repo.GetHistory(ctx, "10.0.0.1", 1)
	if err != nil {
		t.Fatalf("GetHistory(limit 1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len = %d, want 1", len(limited))
	}
}

func TestHistory_InvalidAddress(t *testing.T) {
	repo := openHistoryDB(t)
	ctx := context.Background()

	if err := repo.Record(ctx, device.Snapshot{}); !errors.Is(err, device.ErrInvalidAddress) {
		t.Errorf("Record() error = %v, want ErrInvalidAddress", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, device.ErrInvalidAddress) {
		t.Errorf("GetHistory() error = %v, want ErrInvalidAddress", err)
	}
}

func TestHistory_Prune(t *testing.T) {
	repo := openHistoryDB(t)
	ctx := context.Background()

	old := device.Snapshot{Address: "10.0.0.1", UpdatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := device.Snapshot{Address: "10.0.0.1", UpdatedAt: time.Now()}
	for _, s := range []device.Snapshot{old, fresh} {
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) expected error")
	}
}

func TestHistory_StoreSnapshots(t *testing.T) {
	repo := openHistoryDB(t)
	ctx := context.Background()
	now := time.Now()

	snaps := []device.Snapshot{
		{Address: "10.0.0.1", UpdatedAt: now},
		{Address: "10.0.0.2", UpdatedAt: now},
	}
	if err := repo.StoreSnapshots(ctx, snaps); err != nil {
		t.Fatalf("StoreSnapshots() error = %v", err)
	}
	for _, s := range snaps {
		entries, err := repo.GetHistory(ctx, s.Address, 0)
		if err != nil || len(entries) != 1 {
			t.Errorf("GetHistory(%s) = %d entries, %v", s.Address, len(entries), err)
		}
	}

	if err := repo.StoreSnapshots(ctx, []device.Snapshot{{}}); !errors.Is(err, device.ErrInvalidAddress) {
		t.Errorf("StoreSnapshots(no address) error = %v, want ErrInvalidAddress", err)
	}
}
