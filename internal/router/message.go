package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Response and status values used on the wire.
const (
	TypeResponse       = "response"
	TypeAccessResponse = "access_response"

	StatusSuccess = "success"
	StatusError   = "error"

	// CommandSync is the command name echoed in sync_request replies.
	CommandSync = "sync"
)

// Keys the router interprets. Anything else a device sends is kept as
// extra data on the access log entry.
const (
	keyCommand     = "command"
	keyUID         = "uid"
	keyDeviceID    = "device_id"
	keyDescription = "description"
)

// message is one decoded inbound payload.
type message struct {
	Command     string
	UID         string
	DeviceID    string
	Description string

	// Extra holds the remaining fields as a JSON object, or nil.
	Extra json.RawMessage
}

// decodeMessage parses a JSON object payload. Numbers are kept as
// json.Number so numeric card ids keep their exact digits.
func decodeMessage(payload []byte) (*message, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	m := &message{
		Command:     stringField(fields, keyCommand),
		UID:         stringField(fields, keyUID),
		DeviceID:    stringField(fields, keyDeviceID),
		Description: stringField(fields, keyDescription),
	}

	for _, k := range []string{keyCommand, keyUID, keyDeviceID} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		extra, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		m.Extra = extra
	}
	return m, nil
}

// stringField returns a string or numeric field as text. Other types, and
// absent keys, yield "".
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// CommandResponse answers add_card and remove_card.
type CommandResponse struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	CardID  string `json:"card_id,omitempty"`
}

// SyncResponse answers sync_request with the active card ids.
type SyncResponse struct {
	Type    string   `json:"type"`
	Command string   `json:"command"`
	Status  string   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Cards   []string `json:"cards"`
}

// AccessResponse answers a tag reading.
type AccessResponse struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	Authorized bool   `json:"authorized"`
	CardID     string `json:"card_id"`
}

// extraKeys lists the keys of an extra object, sorted. Used for logging.
func extraKeys(extra json.RawMessage) []string {
	if len(extra) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(extra, &m) != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
