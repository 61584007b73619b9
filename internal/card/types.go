package card

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a card. Only StatusActive is ever
// produced; the column is kept so a deactivation state can be added later
// without a schema change.
type Status string

// StatusActive marks a card that opens doors.
const StatusActive Status = "active"

// Card is one authorized RFID tag.
type Card struct {
	CardID      string     `json:"card_id"`
	Description string     `json:"description"`
	AddedAt     time.Time  `json:"added_at"`
	Status      Status     `json:"status"`
	LastUsed    *time.Time `json:"last_used"`
	AccessCount int64      `json:"access_count"`
}

// Admin commands carried in the access log's Command field.
const (
	CommandAddCard     = "add_card"
	CommandRemoveCard  = "remove_card"
	CommandSyncRequest = "sync_request"
)

// AccessLogEntry is one inbound message: a plain reading (Command empty) or
// an admin command. Entries are append-only.
type AccessLogEntry struct {
	ID              string    `json:"id"`
	UID             string    `json:"uid"`
	DeviceID        string    `json:"device_id"`
	ServerTimestamp time.Time `json:"server_timestamp"`

	// Authorized is nil for admin commands.
	Authorized *bool `json:"authorized,omitempty"`

	Command string `json:"command,omitempty"`

	// Extra holds any additional fields the device sent, as a JSON object.
	Extra json.RawMessage `json:"extra,omitempty"`
}

// IsReading reports whether the entry is a plain tag reading.
func (e AccessLogEntry) IsReading() bool {
	return e.Command == ""
}

// Detail is a card together with its most recent access log entries.
type Detail struct {
	Card
	RecentAccess []AccessLogEntry `json:"recent_access"`
}

// LogFilter narrows an access log query. Zero values mean "no constraint";
// results are newest first.
type LogFilter struct {
	UID   string
	Since time.Time
	Limit int
}

// ValidateCardID rejects the empty identifier. Any other string is a
// card id as the reader reported it.
func ValidateCardID(id string) error {
	if id == "" {
		return ErrInvalidCardID
	}
	return nil
}

// Bool returns a pointer to b, for building entries with an Authorized value.
func Bool(b bool) *bool {
	return &b
}
