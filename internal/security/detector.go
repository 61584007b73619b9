package security

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Detector.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// History is the read side of the access log and registry the detector
// consults. card.SQLiteRepository satisfies it.
type History interface {
	// CountReadings counts plain readings (admin commands excluded) for
	// uid at or after since.
	CountReadings(ctx context.Context, uid string, since time.Time) (int, error)

	// Exists reports whether the card is registered.
	Exists(ctx context.Context, cardID string) (bool, error)
}

// Detector evaluates the intrusion heuristic after each reading has been
// logged. It holds no per-card state; every decision is made from the
// stored history.
type Detector struct {
	history   History
	events    Repository
	window    time.Duration
	threshold int
	logger    Logger
	onEvent   func(Event)
	newID     func() string
}

// NewDetector creates a Detector with the window and threshold from cfg.
func NewDetector(history History, events Repository, cfg config.IntrusionConfig) *Detector {
	return &Detector{
		history:   history,
		events:    events,
		window:    cfg.Window,
		threshold: cfg.Threshold,
		logger:    noopLogger{},
		newID:     uuid.NewString,
	}
}

// SetLogger sets the logger for the detector.
func (d *Detector) SetLogger(logger Logger) {
	d.logger = logger
}

// SetOnEvent registers a callback invoked for every stored event.
// It runs on the ingestion path and must not block.
func (d *Detector) SetOnEvent(fn func(Event)) {
	d.onEvent = fn
}

// Check runs both rules for one reading and returns the events it stored.
// The rules are independent: a reading can yield none, one or both.
// Failures are logged and never returned; detection must not hold up the
// access response.
func (d *Detector) Check(ctx context.Context, r Reading) []Event {
	var found []Event

	count, err := d.history.CountReadings(ctx, r.CardID, r.At.Add(-d.window))
	switch {
	case err != nil:
		d.logger.Error("intrusion rate check failed", "card_id", r.CardID, "error", err)
	case count > d.threshold:
		e := d.record(ctx, Event{
			Type:      EventSuspiciousActivity,
			CardID:    r.CardID,
			DeviceID:  r.DeviceID,
			Timestamp: r.At,
			Attempts:  count,
		})
		if e != nil {
			d.logger.Warn("suspicious activity",
				"card_id", r.CardID, "device_id", r.DeviceID,
				"attempts", count, "window", d.window.String())
			found = append(found, *e)
		}
	}

	exists, err := d.history.Exists(ctx, r.CardID)
	switch {
	case err != nil:
		d.logger.Error("intrusion authorization check failed", "card_id", r.CardID, "error", err)
	case !exists:
		e := d.record(ctx, Event{
			Type:      EventUnauthorizedAttempt,
			CardID:    r.CardID,
			DeviceID:  r.DeviceID,
			Timestamp: r.At,
		})
		if e != nil {
			d.logger.Warn("unauthorized access attempt", "card_id", r.CardID, "device_id", r.DeviceID)
			found = append(found, *e)
		}
	}

	return found
}

func (d *Detector) record(ctx context.Context, e Event) *Event {
	e.ID = d.newID()
	if err := d.events.Append(ctx, &e); err != nil {
		d.logger.Error("failed to store security event", "type", string(e.Type), "card_id", e.CardID, "error", err)
		return nil
	}
	if d.onEvent != nil {
		d.onEvent(e)
	}
	return &e
}

// EventsSince returns stored events at or after since, newest first.
func (d *Detector) EventsSince(ctx context.Context, since time.Time) ([]Event, error) {
	return d.events.Since(ctx, since, 0)
}

// RecentEvents returns up to limit events from the trailing period,
// newest first.
func (d *Detector) RecentEvents(ctx context.Context, period time.Duration, limit int) ([]Event, error) {
	return d.events.Since(ctx, time.Now().Add(-period), limit)
}
