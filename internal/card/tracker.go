package card

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Tracker.
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

// ChangeKind names a registry mutation. The values double as backup types.
type ChangeKind string

// Registry mutations.
const (
	ChangeAdd    ChangeKind = "card_add"
	ChangeRemove ChangeKind = "card_remove"
)

// Change describes one registry mutation.
type Change struct {
	Kind   ChangeKind
	CardID string
}

// ChangeNotifier is told about every successful add and remove. It is
// called after the store write; it may block for a bounded time and must
// not fail the mutation.
type ChangeNotifier interface {
	CardChanged(ctx context.Context, change Change)
}

// detailRecentLimit is how many log entries Detail carries.
const detailRecentLimit = 10

// Tracker owns the card registry and the access log: it decides whether a
// card is authorized, records every inbound message and keeps the usage
// counters.
//
// All methods are safe for concurrent use; consistency comes from the
// store's single-statement atomicity.
type Tracker struct {
	repo     Repository
	notifier ChangeNotifier
	logger   Logger
	now      func() time.Time
	newID    func() string
}

// NewTracker creates a Tracker. notifier may be nil when no backups are wanted
// (tools, tests).
func NewTracker(repo Repository, notifier ChangeNotifier) *Tracker {
	return &Tracker{
		repo:     repo,
		notifier: notifier,
		logger:   noopLogger{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// SetClock replaces the wall clock. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Now returns the tracker's current time in UTC.
func (t *Tracker) Now() time.Time {
	return t.now().UTC()
}

// AddCard registers a card as active with zero usage, then notifies the
// change listener. Returns ErrCardExists if the id is already registered.
func (t *Tracker) AddCard(ctx context.Context, cardID, description string) error {
	if err := ValidateCardID(cardID); err != nil {
		return err
	}

	c := &Card{
		CardID:      cardID,
		Description: description,
		AddedAt:     t.Now(),
		Status:      StatusActive,
	}
	if err := t.repo.Create(ctx, c); err != nil {
		return err
	}

	t.logger.Info("card added", "card_id", cardID)
	t.notify(ctx, Change{Kind: ChangeAdd, CardID: cardID})
	return nil
}

// RemoveCard deletes a card, then notifies the change listener.
// Returns ErrCardNotFound if the card is not registered.
func (t *Tracker) RemoveCard(ctx context.Context, cardID string) error {
	if err := ValidateCardID(cardID); err != nil {
		return err
	}
	if err := t.repo.Delete(ctx, cardID); err != nil {
		return err
	}

	t.logger.Info("card removed", "card_id", cardID)
	t.notify(ctx, Change{Kind: ChangeRemove, CardID: cardID})
	return nil
}

func (t *Tracker) notify(ctx context.Context, change Change) {
	if t.notifier == nil {
		return
	}
	t.notifier.CardChanged(ctx, change)
}

// IsAuthorized reports whether the card is registered. Status is not
// consulted; every registered card is active.
func (t *Tracker) IsAuthorized(ctx context.Context, cardID string) (bool, error) {
	if cardID == "" {
		return false, nil
	}
	return t.repo.Exists(ctx, cardID)
}

// RecordReading appends an entry to the access log, filling in its id and
// server timestamp when unset. An error means the entry was lost; the
// authorization decision already made stands.
func (t *Tracker) RecordReading(ctx context.Context, e *AccessLogEntry) error {
	if e.ID == "" {
		e.ID = t.newID()
	}
	if e.ServerTimestamp.IsZero() {
		e.ServerTimestamp = t.Now()
	}
	return t.repo.AppendLog(ctx, e)
}

// RecordUsage bumps the card's counters. A card removed since it was
// authorized is not an error.
func (t *Tracker) RecordUsage(ctx context.Context, cardID string) error {
	updated, err := t.repo.RecordUsage(ctx, cardID, t.Now())
	if err != nil {
		return err
	}
	if !updated {
		t.logger.Debug("usage not recorded, card removed", "card_id", cardID)
	}
	return nil
}

// Reading is a tag reading as received from a device.
type Reading struct {
	UID        string
	DeviceID   string
	ReceivedAt time.Time
	Extra      json.RawMessage
}

// ProcessReading runs the authorization pipeline for one reading: decide,
// log the decision, bump usage when granted. Storage faults after the
// decision are logged, not returned; only a failed lookup is an error, and
// then the reading is treated as denied.
func (t *Tracker) ProcessReading(ctx context.Context, r Reading) (bool, error) {
	authorized, lookupErr := t.IsAuthorized(ctx, r.UID)
	if lookupErr != nil {
		authorized = false
		lookupErr = fmt.Errorf("checking authorization: %w", lookupErr)
	}

	entry := &AccessLogEntry{
		UID:             r.UID,
		DeviceID:        r.DeviceID,
		ServerTimestamp: r.ReceivedAt,
		Authorized:      Bool(authorized),
		Extra:           r.Extra,
	}
	if err := t.RecordReading(ctx, entry); err != nil {
		t.logger.Error("failed to record reading", "card_id", r.UID, "device_id", r.DeviceID, "error", err)
	}

	if authorized {
		if err := t.RecordUsage(ctx, r.UID); err != nil {
			t.logger.Error("failed to record card usage", "card_id", r.UID, "error", err)
		}
	}

	return authorized, lookupErr
}

// LogCommand records an admin command in the access log with no
// authorization value.
func (t *Tracker) LogCommand(ctx context.Context, command, uid, deviceID string, at time.Time) {
	entry := &AccessLogEntry{
		UID:             uid,
		DeviceID:        deviceID,
		ServerTimestamp: at,
		Command:         command,
	}
	if err := t.RecordReading(ctx, entry); err != nil {
		t.logger.Error("failed to record command", "command", command, "card_id", uid, "error", err)
	}
}

// SyncActiveCards returns the ids a device should hold in its local allow list.
func (t *Tracker) SyncActiveCards(ctx context.Context, deviceID string) ([]string, error) {
	ids, err := t.repo.ActiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("card sync", "device_id", deviceID, "cards", len(ids))
	return ids, nil
}

// ListCards returns every registered card.
func (t *Tracker) ListCards(ctx context.Context) ([]Card, error) {
	return t.repo.List(ctx)
}

// CardDetail returns a card with its ten most recent access log entries.
func (t *Tracker) CardDetail(ctx context.Context, cardID string) (*Detail, error) {
	c, err := t.repo.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	recent, err := t.repo.ListLogs(ctx, LogFilter{UID: cardID, Limit: detailRecentLimit})
	if err != nil {
		return nil, err
	}
	return &Detail{Card: *c, RecentAccess: recent}, nil
}

// ListLogs returns access log entries newest first.
func (t *Tracker) ListLogs(ctx context.Context, f LogFilter) ([]AccessLogEntry, error) {
	return t.repo.ListLogs(ctx, f)
}

// LogsSince returns every access log entry at or after since, newest first.
func (t *Tracker) LogsSince(ctx context.Context, since time.Time) ([]AccessLogEntry, error) {
	return t.repo.ListLogs(ctx, LogFilter{Since: since})
}

// Counts returns the registry size and access log length.
func (t *Tracker) Counts(ctx context.Context) (cards, logs int, err error) {
	if cards, err = t.repo.CountCards(ctx); err != nil {
		return 0, 0, err
	}
	if logs, err = t.repo.CountLogs(ctx); err != nil {
		return 0, 0, err
	}
	return cards, logs, nil
}
