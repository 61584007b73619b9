package backup

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/accessguard-core/internal/card"
)

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 1, 2, 0, 0, 123_000_000, time.UTC)

	name := fileName(TypeCardAdd, at, "1f0c9a2b-77aa-4c1e-9f1e-0123456789ab", false)
	assert.Equal(t, "card_add_backup_20260301_020000.123_1f0c9a2b.json", name)

	typ, got, ok := parseFileName(name)
	require.True(t, ok)
	assert.Equal(t, TypeCardAdd, typ)
	assert.True(t, got.Equal(at))

	compressed := fileName(TypeDaily, at, "abc", true)
	assert.Equal(t, "daily_backup_20260301_020000.123_abc.json.zst", compressed)
	typ, _, ok = parseFileName(compressed)
	require.True(t, ok)
	assert.Equal(t, TypeDaily, typ)
}

func TestParseFileName_Rejects(t *testing.T) {
	for _, name := range []string{
		"notes.txt",
		"_backup_20260301_020000.000_x.json",
		"hourly_backup_20260301_020000.000_x.json",
		"daily_backup_2026.json",
		"daily_backup_20260301_020000.000_x.tar",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, ok := parseFileName(name)
			assert.False(t, ok)
		})
	}
}

func sampleRecord() *Record {
	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Record{
		ID:        "rec-1",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Type:      TypeManual,
		Data: Payload{
			Cards: []card.Card{{CardID: "A1", Status: card.StatusActive, LastUsed: &last, AccessCount: 3}},
			Logs:  []card.AccessLogEntry{{ID: "l1", UID: "A1", Authorized: card.Bool(true)}},
		},
		Metadata: map[string]string{"reason": "test"},
		FileName: "manual_backup_20260301_100000.000_rec-1.json",
	}
}

func TestEncodeDecodeFile(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := fileName(TypeManual, time.Now(), "rec-1", compress)
		t.Run(name, func(t *testing.T) {
			rec := sampleRecord()

			data, err := encodeFile(rec, compress)
			require.NoError(t, err)
			assert.Equal(t, !compress, bytes.HasPrefix(data, []byte("{")))

			got, err := decodeFile(name, data)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, rec.Metadata, got.Metadata)
			require.Len(t, got.Data.Cards, 1)
			assert.EqualValues(t, 3, got.Data.Cards[0].AccessCount)
			require.Len(t, got.Data.Logs, 1)
			assert.True(t, *got.Data.Logs[0].Authorized)
		})
	}
}

func TestDecodeFile_Invalid(t *testing.T) {
	_, err := decodeFile("x.json", []byte(`{"id":"r","data":{"cards":[]}}`))
	assert.ErrorIs(t, err, ErrInvalidBackup)

	_, err = decodeFile("x.json", []byte(`not json`))
	assert.Error(t, err)

	_, err = decodeFile("x.json.zst", []byte(`{"id":"r"}`))
	assert.Error(t, err, "plain bytes under a .zst name")
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"both lists", `{"cards":[],"logs":[]}`, true},
		{"extra keys", `{"cards":[{}],"logs":[],"other":1}`, true},
		{"missing logs", `{"cards":[]}`, false},
		{"missing cards", `{"logs":[]}`, false},
		{"null list", `{"cards":null,"logs":[]}`, false},
		{"object not list", `{"cards":{},"logs":[]}`, false},
		{"not an object", `[]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayload([]byte(tt.raw))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidBackup), "err = %v", err)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types {
		got, err := ParseType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := ParseType("hourly")
	assert.ErrorIs(t, err, ErrInvalidBackupType)

	assert.True(t, TypeCardAdd.IsCardChange())
	assert.True(t, TypeCardRemove.IsCardChange())
	assert.False(t, TypeDaily.IsCardChange())
}
