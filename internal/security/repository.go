package security

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
)

// Repository stores security events.
type Repository interface {
	// Append inserts an event. ID must be set.
	Append(ctx context.Context, e *Event) error

	// Since returns events at or after since, newest first. limit <= 0
	// means no limit.
	Since(ctx context.Context, since time.Time, limit int) ([]Event, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts one event.
func (r *SQLiteRepository) Append(ctx context.Context, e *Event) error {
	var attempts sql.NullInt64
	if e.Type == EventSuspiciousActivity {
		attempts = sql.NullInt64{Int64: int64(e.Attempts), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (id, type, card_id, device_id, timestamp, attempts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.Type),
		sql.NullString{String: e.CardID, Valid: e.CardID != ""},
		sql.NullString{String: e.DeviceID, Valid: e.DeviceID != ""},
		database.FormatTime(e.Timestamp),
		attempts,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	return nil
}

// Since returns recent events, newest first.
func (r *SQLiteRepository) Since(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	query := `SELECT id, type, card_id, device_id, timestamp, attempts
		FROM security_events
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC`
	args := []any{database.FormatTime(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying security events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var typ, ts string
		var cardID, deviceID sql.NullString
		var attempts sql.NullInt64

		if err := rows.Scan(&e.ID, &typ, &cardID, &deviceID, &ts, &attempts); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}
		if e.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing security event timestamp: %w", err)
		}
		e.Type = EventType(typ)
		e.CardID = cardID.String
		e.DeviceID = deviceID.String
		e.Attempts = int(attempts.Int64)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security events: %w", err)
	}
	return events, nil
}
