package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in-memory", func(t *testing.T) {
		db, err := Open(context.Background(), Config{Path: MemoryPath, WALMode: true})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		// The table must survive across statements on the single connection.
		if _, err := db.Exec("CREATE TABLE t (v TEXT)"); err != nil {
			t.Fatalf("CREATE error = %v", err)
		}
		if _, err := db.Exec("INSERT INTO t VALUES ('x')"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "x.db")}); err == nil {
			t.Error("Open() with cancelled context should fail")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "committed")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if n := countRows(t, db, "committed"); n != 1 {
			t.Errorf("expected 1 committed row, got %d", n)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "rolled_back"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want boom", err)
		}
		if n := countRows(t, db, "rolled_back"); n != 0 {
			t.Errorf("expected 0 rolled back rows, got %d", n)
		}
	})
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", got)
	}
}

func TestFormatParseTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2026, 3, 14, 15, 9, 26, 535897000, loc)

	s := FormatTime(in)
	if s != "2026-03-14T13:09:26.535897000Z" {
		t.Errorf("FormatTime() = %q", s)
	}

	out, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("ParseTime() = %v, want %v", out, in)
	}

	// Lexical order matches chronological order.
	earlier := FormatTime(in.Add(-time.Nanosecond))
	if !(earlier < s) {
		t.Errorf("%q should sort before %q", earlier, s)
	}

	if _, err := ParseTime("2026-03-14T13:09:26+02:00"); err != nil {
		t.Errorf("ParseTime(RFC3339) error = %v", err)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime(garbage) should fail")
	}
}

func TestNullableTime(t *testing.T) {
	if ns := NullableTime(nil); ns.Valid {
		t.Error("NullableTime(nil) should be NULL")
	}
	got, err := ScanNullableTime(sql.NullString{})
	if err != nil || got != nil {
		t.Errorf("ScanNullableTime(NULL) = %v, %v", got, err)
	}

	now := time.Now().UTC()
	got, err = ScanNullableTime(NullableTime(&now))
	if err != nil {
		t.Fatalf("ScanNullableTime() error = %v", err)
	}
	if got == nil || !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
}

func countRows(t *testing.T, db *DB, value string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM tx_test WHERE value = ?", value).Scan(&n); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	return n
}

// openTestDB creates a temporary file database closed at test end.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	return db
}
