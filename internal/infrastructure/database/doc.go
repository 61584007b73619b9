// Package database provides SQLite connectivity for AccessGuard Core.
//
// It stands in for the document store: cards, access logs, security events
// and backup snapshots each live in their own table, created by the embedded
// migrations in the top-level migrations package.
//
// Timestamps are stored as TEXT in TimeLayout (fixed width, UTC) so range
// filters and ORDER BY work on the raw column. Use FormatTime and ParseTime
// rather than formatting by hand.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and every .up.sql has a matching .down.sql.
package database
