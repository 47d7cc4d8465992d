// Package database provides SQLite connectivity for the Kasa bridge.
//
// It opens the database with WAL mode and a busy timeout, limits the pool
// to the single writer SQLite supports, and applies versioned schema
// migrations from any fs.FS (normally the embedded migrations package).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default.
package database
