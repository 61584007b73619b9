package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
)

// Repository is the store copy of every backup.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error

	// Get returns ErrBackupNotFound if the id is unknown.
	Get(ctx context.Context, id string) (*Record, error)

	// RawData returns the stored payload JSON without decoding it.
	RawData(ctx context.Context, id string) (json.RawMessage, error)

	// Latest returns the newest record of any type, or ErrBackupNotFound.
	Latest(ctx context.Context) (*Record, error)

	// List returns every backup, newest first.
	List(ctx context.Context) ([]Summary, error)

	// ListByType returns backups of one type, newest first.
	ListByType(ctx context.Context, t Type) ([]Summary, error)

	// LastPerType returns the newest timestamp for each type present.
	LastPerType(ctx context.Context) (map[Type]time.Time, error)

	// Delete returns ErrBackupNotFound if the id is unknown.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a record.
func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encoding backup data: %w", err)
	}
	var metadata sql.NullString
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encoding backup metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO backups (id, timestamp, type, data, metadata, file_name) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		database.FormatTime(rec.Timestamp),
		string(rec.Type),
		string(data),
		metadata,
		sql.NullString{String: rec.FileName, Valid: rec.FileName != ""},
	)
	if err != nil {
		return fmt.Errorf("inserting backup: %w", err)
	}
	return nil
}

const recordColumns = `id, timestamp, type, data, metadata, file_name`

// Get retrieves a full record.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	return r.getRecord(ctx, `SELECT `+recordColumns+` FROM backups WHERE id = ?`, id)
}

// Latest returns the newest record.
func (r *SQLiteRepository) Latest(ctx context.Context) (*Record, error) {
	return r.getRecord(ctx, `SELECT `+recordColumns+` FROM backups ORDER BY timestamp DESC, id DESC LIMIT 1`)
}

func (r *SQLiteRepository) getRecord(ctx context.Context, query string, args ...any) (*Record, error) {
	var rec Record
	var ts, typ, data string
	var metadata, file sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &ts, &typ, &data, &metadata, &file)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying backup: %w", err)
	}

	if rec.Timestamp, err = database.ParseTime(ts); err != nil {
		return nil, fmt.Errorf("parsing backup timestamp: %w", err)
	}
	rec.Type = Type(typ)
	rec.FileName = file.String
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("decoding backup data: %w", err)
	}
	rec.Metadata = map[string]string{}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decoding backup metadata: %w", err)
		}
	}
	return &rec, nil
}

// RawData returns the payload column as stored.
func (r *SQLiteRepository) RawData(ctx context.Context, id string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM backups WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying backup data: %w", err)
	}
	return json.RawMessage(data), nil
}

// List returns all backups without payloads.
func (r *SQLiteRepository) List(ctx context.Context) ([]Summary, error) {
	return r.listSummaries(ctx, `SELECT id, timestamp, type, file_name FROM backups ORDER BY timestamp DESC, id DESC`)
}

// ListByType returns backups of one type without payloads.
func (r *SQLiteRepository) ListByType(ctx context.Context, t Type) ([]Summary, error) {
	return r.listSummaries(ctx,
		`SELECT id, timestamp, type, file_name FROM backups WHERE type = ? ORDER BY timestamp DESC, id DESC`,
		string(t))
}

func (r *SQLiteRepository) listSummaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying backups: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		var ts, typ string
		var file sql.NullString
		if err := rows.Scan(&s.ID, &ts, &typ, &file); err != nil {
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		if s.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing backup timestamp: %w", err)
		}
		s.Type = Type(typ)
		s.FileName = file.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backups: %w", err)
	}
	return out, nil
}

// LastPerType returns the newest backup time for each type.
func (r *SQLiteRepository) LastPerType(ctx context.Context) (map[Type]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, MAX(timestamp) FROM backups GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("querying backup status: %w", err)
	}
	defer rows.Close()

	last := map[Type]time.Time{}
	for rows.Next() {
		var typ, ts string
		if err := rows.Scan(&typ, &ts); err != nil {
			return nil, fmt.Errorf("scanning backup status: %w", err)
		}
		t, err := database.ParseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parsing backup timestamp: %w", err)
		}
		last[Type(typ)] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backup status: %w", err)
	}
	return last, nil
}

// Delete removes a record.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting backup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting backup: %w", err)
	}
	if n == 0 {
		return ErrBackupNotFound
	}
	return nil
}
