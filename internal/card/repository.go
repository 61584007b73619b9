package card

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
)

// Repository is the registry store for cards and the access log.
type Repository interface {
	// Create inserts a card if its id is free.
	// Returns ErrCardExists if the id is taken.
	Create(ctx context.Context, c *Card) error

	// Get returns ErrCardNotFound if the card does not exist.
	Get(ctx context.Context, cardID string) (*Card, error)

	// Delete returns ErrCardNotFound if the card does not exist.
	Delete(ctx context.Context, cardID string) error

	Exists(ctx context.Context, cardID string) (bool, error)

	// List returns all cards ordered by card id.
	List(ctx context.Context) ([]Card, error)

	// ActiveIDs returns the ids of cards with status active.
	ActiveIDs(ctx context.Context) ([]string, error)

	// RecordUsage increments access_count and moves last_used forward to at.
	// It reports false when the card no longer exists.
	RecordUsage(ctx context.Context, cardID string, at time.Time) (bool, error)

	CountCards(ctx context.Context) (int, error)

	// AppendLog inserts an access log entry. ID must be set.
	AppendLog(ctx context.Context, e *AccessLogEntry) error

	// ListLogs returns entries matching f, newest first.
	ListLogs(ctx context.Context, f LogFilter) ([]AccessLogEntry, error)

	// AllLogs returns every entry, oldest first.
	AllLogs(ctx context.Context) ([]AccessLogEntry, error)

	// CountReadings counts plain readings (no command) for uid at or after since.
	CountReadings(ctx context.Context, uid string, since time.Time) (int, error)

	CountLogs(ctx context.Context) (int, error)

	// ReplaceCards deletes every card and inserts cards, in one transaction.
	ReplaceCards(ctx context.Context, cards []Card) error

	// ReplaceLogs deletes every access log entry and inserts logs, in one transaction.
	ReplaceLogs(ctx context.Context, logs []AccessLogEntry) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const cardColumns = `card_id, description, added_at, status, last_used, access_count`

const insertCardSQL = `INSERT INTO cards (` + cardColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

// Create inserts a card. The id check and the insert are one statement, so
// two concurrent adds of the same id cannot both succeed.
func (r *SQLiteRepository) Create(ctx context.Context, c *Card) error {
	res, err := r.db.ExecContext(ctx,
		insertCardSQL+` ON CONFLICT(card_id) DO NOTHING`,
		cardArgs(c)...,
	)
	if err != nil {
		return fmt.Errorf("inserting card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting card: %w", err)
	}
	if n == 0 {
		return ErrCardExists
	}
	return nil
}

// Get retrieves a card by id.
func (r *SQLiteRepository) Get(ctx context.Context, cardID string) (*Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_id = ?`, cardID)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("querying card: %w", err)
	}
	return c, nil
}

// Delete removes a card by id.
func (r *SQLiteRepository) Delete(ctx context.Context, cardID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE card_id = ?`, cardID)
	if err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	if n == 0 {
		return ErrCardNotFound
	}
	return nil
}

// Exists reports whether a card id is registered.
func (r *SQLiteRepository) Exists(ctx context.Context, cardID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE card_id = ?`, cardID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking card: %w", err)
	}
	return true, nil
}

// List returns all cards.
func (r *SQLiteRepository) List(ctx context.Context) ([]Card, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY card_id`)
	if err != nil {
		return nil, fmt.Errorf("querying cards: %w", err)
	}
	defer rows.Close()

	cards := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cards: %w", err)
	}
	return cards, nil
}

// ActiveIDs returns active card ids in id order.
func (r *SQLiteRepository) ActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT card_id FROM cards WHERE status = ? ORDER BY card_id`, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying active cards: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating card ids: %w", err)
	}
	return ids, nil
}

// RecordUsage bumps the usage counters. last_used never moves backwards,
// even if two readings are processed with out-of-order clocks.
func (r *SQLiteRepository) RecordUsage(ctx context.Context, cardID string, at time.Time) (bool, error) {
	ts := database.FormatTime(at)
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards
		SET access_count = access_count + 1,
			last_used = CASE WHEN last_used IS NULL OR last_used < ? THEN ? ELSE last_used END
		WHERE card_id = ?`,
		ts, ts, cardID,
	)
	if err != nil {
		return false, fmt.Errorf("updating card usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating card usage: %w", err)
	}
	return n > 0, nil
}

// CountCards returns the number of registered cards.
func (r *SQLiteRepository) CountCards(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM cards`)
}

// AppendLog inserts one access log entry.
func (r *SQLiteRepository) AppendLog(ctx context.Context, e *AccessLogEntry) error {
	if err := insertLog(ctx, r.db, e); err != nil {
		return fmt.Errorf("inserting access log: %w", err)
	}
	return nil
}

const logColumns = `id, uid, device_id, server_timestamp, authorized, command, extra`

// ListLogs returns access log entries newest first.
func (r *SQLiteRepository) ListLogs(ctx context.Context, f LogFilter) ([]AccessLogEntry, error) {
	var where []string
	var args []any
	if f.UID != "" {
		where = append(where, "uid = ?")
		args = append(args, f.UID)
	}
	if !f.Since.IsZero() {
		where = append(where, "server_timestamp >= ?")
		args = append(args, database.FormatTime(f.Since))
	}

	query := `SELECT ` + logColumns + ` FROM access_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY server_timestamp DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return r.queryLogs(ctx, query, args...)
}

// AllLogs returns the whole access log, oldest first.
func (r *SQLiteRepository) AllLogs(ctx context.Context) ([]AccessLogEntry, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM access_logs ORDER BY server_timestamp, id`)
}

// CountReadings counts plain readings for uid since the given instant.
// Admin commands are excluded so management traffic never trips the
// intrusion threshold.
func (r *SQLiteRepository) CountReadings(ctx context.Context, uid string, since time.Time) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM access_logs
		WHERE uid = ? AND server_timestamp >= ? AND command IS NULL`,
		uid, database.FormatTime(since),
	)
}

// CountLogs returns the number of access log entries.
func (r *SQLiteRepository) CountLogs(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM access_logs`)
}

// ReplaceCards swaps the whole card collection.
func (r *SQLiteRepository) ReplaceCards(ctx context.Context, cards []Card) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards`); err != nil {
			return fmt.Errorf("clearing cards: %w", err)
		}
		for i := range cards {
			if _, err := tx.ExecContext(ctx, insertCardSQL, cardArgs(&cards[i])...); err != nil {
				return fmt.Errorf("restoring card %s: %w", cards[i].CardID, err)
			}
		}
		return nil
	})
}

// ReplaceLogs swaps the whole access log.
func (r *SQLiteRepository) ReplaceLogs(ctx context.Context, logs []AccessLogEntry) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM access_logs`); err != nil {
			return fmt.Errorf("clearing access logs: %w", err)
		}
		for i := range logs {
			if err := insertLog(ctx, tx, &logs[i]); err != nil {
				return fmt.Errorf("restoring access log %s: %w", logs[i].ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryLogs(ctx context.Context, query string, args ...any) ([]AccessLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	logs := []AccessLogEntry{}
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access log: %w", err)
		}
		logs = append(logs, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}
	return logs, nil
}

func cardArgs(c *Card) []any {
	status := c.Status
	if status == "" {
		status = StatusActive
	}
	return []any{
		c.CardID,
		nullableString(c.Description),
		database.FormatTime(c.AddedAt),
		string(status),
		database.NullableTime(c.LastUsed),
		c.AccessCount,
	}
}

func insertLog(ctx context.Context, db execer, e *AccessLogEntry) error {
	var authorized sql.NullBool
	if e.Authorized != nil {
		authorized = sql.NullBool{Bool: *e.Authorized, Valid: true}
	}
	var extra sql.NullString
	if len(e.Extra) > 0 {
		extra = sql.NullString{String: string(e.Extra), Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO access_logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		nullableString(e.UID),
		nullableString(e.DeviceID),
		database.FormatTime(e.ServerTimestamp),
		authorized,
		nullableString(e.Command),
		extra,
	)
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*Card, error) {
	var c Card
	var description, lastUsed sql.NullString
	var addedAt, status string

	if err := s.Scan(&c.CardID, &description, &addedAt, &status, &lastUsed, &c.AccessCount); err != nil {
		return nil, err
	}

	var err error
	c.Description = description.String
	c.Status = Status(status)
	if c.AddedAt, err = database.ParseTime(addedAt); err != nil {
		return nil, err
	}
	if c.LastUsed, err = database.ScanNullableTime(lastUsed); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanLog(s scanner) (*AccessLogEntry, error) {
	var e AccessLogEntry
	var uid, deviceID, command, extra sql.NullString
	var ts string
	var authorized sql.NullBool

	if err := s.Scan(&e.ID, &uid, &deviceID, &ts, &authorized, &command, &extra); err != nil {
		return nil, err
	}

	var err error
	if e.ServerTimestamp, err = database.ParseTime(ts); err != nil {
		return nil, err
	}
	e.UID = uid.String
	e.DeviceID = deviceID.String
	e.Command = command.String
	if authorized.Valid {
		e.Authorized = Bool(authorized.Bool)
	}
	if extra.Valid && extra.String != "" {
		e.Extra = json.RawMessage(extra.String)
	}
	return &e, nil
}

// nullableString stores empty strings as NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
