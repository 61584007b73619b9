package security

import "time"

// EventType identifies which rule produced an event.
type EventType string

// Detector findings.
const (
	// EventSuspiciousActivity means a card was read more often than the
	// threshold within the window.
	EventSuspiciousActivity EventType = "suspicious_activity"

	// EventUnauthorizedAttempt means a reading named a card that is not
	// registered.
	EventUnauthorizedAttempt EventType = "unauthorized_attempt"
)

// Event is one detector finding. Events are append-only.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	CardID    string    `json:"card_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// Attempts is the reading count in the window. Set only for
	// EventSuspiciousActivity.
	Attempts int `json:"attempts,omitempty"`
}

// Reading is what the detector needs to know about one tag reading.
type Reading struct {
	CardID   string
	DeviceID string

	// At is the server timestamp the reading was logged with. The window
	// ends here.
	At time.Time
}
