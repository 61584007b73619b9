package backup

import (
	"fmt"
	"time"

	"github.com/nerrad567/accessguard-core/internal/card"
)

// Type classifies a backup by what triggered it.
type Type string

// Backup types.
const (
	TypeDaily      Type = "daily"
	TypeWeekly     Type = "weekly"
	TypeMonthly    Type = "monthly"
	TypeCardAdd    Type = Type(card.ChangeAdd)
	TypeCardRemove Type = Type(card.ChangeRemove)

	// TypeManual is an operator-requested snapshot. It has no retention rule.
	TypeManual Type = "manual"
)

// Types lists every backup type in retention order.
var Types = []Type{TypeDaily, TypeWeekly, TypeMonthly, TypeCardAdd, TypeCardRemove, TypeManual}

// ParseType validates a backup type name.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBackupType, s)
}

// IsCardChange reports whether the type is kept by count rather than age.
func (t Type) IsCardChange() bool {
	return t == TypeCardAdd || t == TypeCardRemove
}

// Payload is the snapshot content: the full card registry and access log.
type Payload struct {
	Cards []card.Card           `json:"cards"`
	Logs  []card.AccessLogEntry `json:"logs"`
}

// Record is one snapshot. It is immutable once written. The same record is
// stored twice: as a row in the backups table and as a file named FileName.
type Record struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      Type              `json:"type"`
	Data      Payload           `json:"data"`
	Metadata  map[string]string `json:"metadata"`
	FileName  string            `json:"file_name"`
}

// Summary describes a record without its payload.
type Summary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	FileName  string    `json:"file_name,omitempty"`
}

// Summary returns the record's listing form.
func (r *Record) Summary() Summary {
	return Summary{ID: r.ID, Timestamp: r.Timestamp, Type: r.Type, FileName: r.FileName}
}

// Status reports the state of the backup subsystem.
type Status struct {
	Count int `json:"count"`

	// Last holds the newest backup time per type. Types never backed up
	// are absent.
	Last map[Type]time.Time `json:"last"`
}
