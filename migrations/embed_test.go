package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-kasa/migrations"
)

func TestEmbeddedSchemaApplies(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "schema.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx := context.Background()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"job_log", "snapshot_history"} {
		var name string
		if err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
