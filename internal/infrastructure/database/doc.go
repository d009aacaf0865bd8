// Package database provides SQLite connectivity for the VYON auth service.
//
// This package manages:
//   - The connection, with foreign keys enforced and optional WAL mode
//   - Schema migrations read from an injected fs.FS
//   - Health checks and pool statistics for the /health and /metrics endpoints
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600; it holds password digests
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with a matching
// .down.sql. Each migration is applied in its own transaction.
package database
