package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the backup package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CardStore is the registry the manager snapshots and restores.
// card.SQLiteRepository satisfies it.
type CardStore interface {
	List(ctx context.Context) ([]card.Card, error)
	AllLogs(ctx context.Context) ([]card.AccessLogEntry, error)
	ReplaceCards(ctx context.Context, cards []card.Card) error
	ReplaceLogs(ctx context.Context, logs []card.AccessLogEntry) error
}

// Telemetry receives one result per snapshot. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteBackupResult(backupType string, ok bool, cards, logs int, elapsed time.Duration, at time.Time)
}

// Manager creates, prunes and restores backups. Every backup is written
// twice: a row in the store and a file. The two writes are independent;
// neither is rolled back when the other fails.
//
// Manager is safe for concurrent use.
type Manager struct {
	cards     CardStore
	repo      Repository
	files     FileStore
	retention config.BackupRetentionConfig
	compress  bool
	logger    Logger
	telemetry Telemetry
	now       func() time.Time
	newID     func() string
}

// NewManager creates a Manager.
func NewManager(cards CardStore, repo Repository, files FileStore, cfg config.BackupConfig) *Manager {
	return &Manager{
		cards:     cards,
		repo:      repo,
		files:     files,
		retention: cfg.Retention,
		compress:  cfg.Compress,
		logger:    noopLogger{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetTelemetry sets where snapshot results are reported.
func (m *Manager) SetTelemetry(t Telemetry) {
	m.telemetry = t
}

// SetClock replaces the wall clock. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Files returns the file store.
func (m *Manager) Files() FileStore {
	return m.files
}

// CreateBackup snapshots the registry and access log into one record and
// writes it to the store and to a file. Both writes are always attempted.
// If exactly one fails the record is returned along with an error wrapping
// ErrPartialBackup; if both fail only the error is returned.
//
// Cards and logs are read separately, so a write landing between the two
// reads can make the snapshot slightly inconsistent.
func (m *Manager) CreateBackup(ctx context.Context, t Type, metadata map[string]string) (*Record, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	start := time.Now()

	cards, err := m.cards.List(ctx)
	if err != nil {
		m.report(t, false, 0, 0, start)
		return nil, fmt.Errorf("reading cards: %w", err)
	}
	logs, err := m.cards.AllLogs(ctx)
	if err != nil {
		m.report(t, false, len(cards), 0, start)
		return nil, fmt.Errorf("reading access logs: %w", err)
	}
	if cards == nil {
		cards = []card.Card{}
	}
	if logs == nil {
		logs = []card.AccessLogEntry{}
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	id := m.newID()
	at := m.now().UTC()
	rec := &Record{
		ID:        id,
		Timestamp: at,
		Type:      t,
		Data:      Payload{Cards: cards, Logs: logs},
		Metadata:  metadata,
		FileName:  fileName(t, at, id, m.compress),
	}

	storeErr := m.repo.Insert(ctx, rec)
	if storeErr != nil {
		m.logger.Error("backup store write failed", "id", id, "type", string(t), "error", storeErr)
	}

	fileErr := m.writeFile(ctx, rec)
	if fileErr != nil {
		m.logger.Error("backup file write failed", "id", id, "file", rec.FileName, "error", fileErr)
	}

	ok := storeErr == nil && fileErr == nil
	m.report(t, ok, len(cards), len(logs), start)

	switch {
	case storeErr != nil && fileErr != nil:
		return nil, fmt.Errorf("writing backup: %w", errors.Join(storeErr, fileErr))
	case storeErr != nil:
		return rec, fmt.Errorf("%w: store: %w", ErrPartialBackup, storeErr)
	case fileErr != nil:
		return rec, fmt.Errorf("%w: file: %w", ErrPartialBackup, fileErr)
	}

	m.logger.Info("backup created",
		"id", id,
		"type", string(t),
		"cards", len(cards),
		"logs", len(logs),
		"file", rec.FileName,
		"duration", time.Since(start).String(),
	)
	return rec, nil
}

func (m *Manager) writeFile(ctx context.Context, rec *Record) error {
	data, err := encodeFile(rec, m.compress)
	if err != nil {
		return err
	}
	return m.files.Put(ctx, rec.FileName, data)
}

func (m *Manager) report(t Type, ok bool, cards, logs int, start time.Time) {
	if m.telemetry == nil {
		return
	}
	m.telemetry.WriteBackupResult(string(t), ok, cards, logs, time.Since(start), m.now())
}

// HandleCardChange takes the card_add or card_remove backup for one
// registry mutation, tagged with the card id and change type.
func (m *Manager) HandleCardChange(ctx context.Context, change card.Change) error {
	t := Type(change.Kind)
	_, err := m.CreateBackup(ctx, t, map[string]string{
		"card_id":     change.CardID,
		"change_type": strings.TrimPrefix(string(change.Kind), "card_"),
	})
	if err != nil {
		return fmt.Errorf("backup after %s of %s: %w", change.Kind, change.CardID, err)
	}
	return nil
}

// CleanupOldBackups applies the retention rules to every type. Card-change
// types keep the newest CardChangeKeep records; daily, weekly and monthly
// records older than their age limit are removed. Manual backups are never
// removed. Each removal deletes the file first, then the row, so a failure
// leaves the row pointing at a missing file rather than an untracked file.
//
// Files with a backup name that no row refers to are also removed once
// they fall outside their type's age limit.
func (m *Manager) CleanupOldBackups(ctx context.Context) error {
	now := m.now().UTC()
	var errs []error
	removed := 0

	for _, t := range Types {
		if t == TypeManual {
			continue
		}
		list, err := m.repo.ListByType(ctx, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s backups: %w", t, err))
			continue
		}

		for _, s := range m.expired(t, list, now) {
			if err := m.remove(ctx, s); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}

	orphans, err := m.sweepOrphans(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}

	m.logger.Info("backup cleanup completed", "removed", removed, "orphan_files", orphans)
	return errors.Join(errs...)
}

// expired returns the members of list (newest first) that retention drops.
func (m *Manager) expired(t Type, list []Summary, now time.Time) []Summary {
	if t.IsCardChange() {
		keep := m.retention.CardChangeKeep
		if len(list) <= keep {
			return nil
		}
		return list[keep:]
	}

	cutoff, ok := m.cutoff(t, now)
	if !ok {
		return nil
	}
	var out []Summary
	for _, s := range list {
		if s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// cutoff returns the age limit for time-based types.
func (m *Manager) cutoff(t Type, now time.Time) (time.Time, bool) {
	const day = 24 * time.Hour
	switch t {
	case TypeDaily:
		return now.Add(-time.Duration(m.retention.DailyDays) * day), true
	case TypeWeekly:
		return now.Add(-time.Duration(m.retention.WeeklyWeeks) * 7 * day), true
	case TypeMonthly:
		return now.AddDate(0, -m.retention.MonthlyMonths, 0), true
	default:
		return time.Time{}, false
	}
}

func (m *Manager) remove(ctx context.Context, s Summary) error {
	if s.FileName != "" {
		if err := m.files.Delete(ctx, s.FileName); err != nil {
			return fmt.Errorf("deleting backup file %s: %w", s.FileName, err)
		}
	}
	if err := m.repo.Delete(ctx, s.ID); err != nil && !errors.Is(err, ErrBackupNotFound) {
		return fmt.Errorf("deleting backup %s: %w", s.ID, err)
	}
	m.logger.Debug("backup removed", "id", s.ID, "type", string(s.Type), "file", s.FileName)
	return nil
}

// sweepOrphans deletes backup files with no row once they are past their
// type's age limit. Card-change and manual orphans are left alone: they may
// be the only copy of a partially written backup.
func (m *Manager) sweepOrphans(ctx context.Context, now time.Time) (int, error) {
	names, err := m.files.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing backup files: %w", err)
	}
	all, err := m.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing backups: %w", err)
	}
	known := make(map[string]bool, len(all))
	for _, s := range all {
		known[s.FileName] = true
	}

	var errs []error
	n := 0
	for _, name := range names {
		if known[name] {
			continue
		}
		t, at, ok := parseFileName(name)
		if !ok {
			continue
		}
		cutoff, ok := m.cutoff(t, now)
		if !ok || !at.Before(cutoff) {
			continue
		}
		if err := m.files.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("deleting orphan file %s: %w", name, err))
			continue
		}
		m.logger.Info("removed orphaned backup file", "file", name)
		n++
	}
	return n, errors.Join(errs...)
}

// RestoreBackup replaces the card registry and the access log with the
// contents of a stored backup. Each collection is replaced in its own
// transaction; if the second fails the first stays replaced. No safety
// backup is taken first.
func (m *Manager) RestoreBackup(ctx context.Context, id string) error {
	rec, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.restore(ctx, rec); err != nil {
		return err
	}
	m.logger.Info("restored from backup", "id", id, "type", string(rec.Type),
		"cards", len(rec.Data.Cards), "logs", len(rec.Data.Logs))
	return nil
}

// RestoreFromFile restores from a backup's file copy, for when the store
// copy is gone. The file is validated before anything is replaced.
func (m *Manager) RestoreFromFile(ctx context.Context, name string) (*Record, error) {
	data, err := m.files.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	rec, err := decodeFile(name, data)
	if err != nil {
		return nil, err
	}
	if err := m.restore(ctx, rec); err != nil {
		return nil, err
	}
	m.logger.Info("restored from backup file", "file", name, "id", rec.ID,
		"cards", len(rec.Data.Cards), "logs", len(rec.Data.Logs))
	return rec, nil
}

func (m *Manager) restore(ctx context.Context, rec *Record) error {
	if err := m.cards.ReplaceCards(ctx, rec.Data.Cards); err != nil {
		m.logger.Error("restore failed", "id", rec.ID, "collection", "cards", "error", err)
		return fmt.Errorf("restoring cards: %w", err)
	}
	if err := m.cards.ReplaceLogs(ctx, rec.Data.Logs); err != nil {
		m.logger.Error("restore failed", "id", rec.ID, "collection", "logs", "error", err)
		return fmt.Errorf("restoring access logs: %w", err)
	}
	return nil
}

// ValidateBackup checks that a stored backup exists and carries both the
// cards and logs lists.
func (m *Manager) ValidateBackup(ctx context.Context, id string) error {
	raw, err := m.repo.RawData(ctx, id)
	if err != nil {
		return err
	}
	return validatePayload(raw)
}

// ListBackups returns every backup without payloads, newest first.
func (m *Manager) ListBackups(ctx context.Context) ([]Summary, error) {
	return m.repo.List(ctx)
}

// GetLatestBackup returns the newest backup of any type.
func (m *Manager) GetLatestBackup(ctx context.Context) (*Record, error) {
	return m.repo.Latest(ctx)
}

// Status returns the backup count and the newest backup per type.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	last, err := m.repo.LastPerType(ctx)
	if err != nil {
		return nil, err
	}
	list, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Count: len(list), Last: last}, nil
}
