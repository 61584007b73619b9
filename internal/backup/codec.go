package backup

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// File name parts. A name looks like
// card_add_backup_20260301_020000.000_1f0c9a2b.json[.zst]
const (
	nameMarker     = "_backup_"
	nameTimeLayout = "20060102_150405.000"
	extJSON        = ".json"
	extZstd        = ".json.zst"
)

// zstd encoders and decoders are safe for concurrent use, so one of each
// serves every backup.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("backup: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("backup: zstd decoder initialization failed: " + err.Error())
	}
}

// fileName builds the unique file name for a backup.
func fileName(t Type, at time.Time, id string, compress bool) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	ext := extJSON
	if compress {
		ext = extZstd
	}
	return string(t) + nameMarker + at.UTC().Format(nameTimeLayout) + "_" + short + ext
}

// parseFileName recovers the type and creation instant from a backup file
// name. ok is false for files that were not written by this package.
func parseFileName(name string) (t Type, at time.Time, ok bool) {
	i := strings.Index(name, nameMarker)
	if i <= 0 {
		return "", time.Time{}, false
	}
	typ, err := ParseType(name[:i])
	if err != nil {
		return "", time.Time{}, false
	}
	rest := name[i+len(nameMarker):]
	if len(rest) < len(nameTimeLayout) {
		return "", time.Time{}, false
	}
	at, err = time.ParseInLocation(nameTimeLayout, rest[:len(nameTimeLayout)], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	if !strings.HasSuffix(name, extJSON) && !strings.HasSuffix(name, extZstd) {
		return "", time.Time{}, false
	}
	return typ, at, true
}

// encodeFile renders a record as the file copy's bytes.
func encodeFile(rec *Record, compress bool) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	if compress {
		return zstdEncoder.EncodeAll(data, nil), nil
	}
	return data, nil
}

// decodeFile parses a file copy. Compression is detected from the name.
func decodeFile(name string, data []byte) (*Record, error) {
	if strings.HasSuffix(name, extZstd) {
		var err error
		if data, err = zstdDecoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompressing backup: %w", err)
		}
	}

	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding backup: %w", err)
	}
	if err := validatePayload(raw.Data); err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding backup: %w", err)
	}
	return &rec, nil
}

// validatePayload checks that a stored payload carries both the cards and
// logs lists.
func validatePayload(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	for _, key := range []string{"cards", "logs"} {
		v, ok := fields[key]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidBackup, key)
		}
		var list []json.RawMessage
		if err := json.Unmarshal(v, &list); err != nil || list == nil {
			return fmt.Errorf("%w: %s is not a list", ErrInvalidBackup, key)
		}
	}
	return nil
}
