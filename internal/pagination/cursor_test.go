package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryID = "5f0c2b1e-0000-4000-8000-000000000001"

func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2019, 12, 7, 10, 0, 0, 123, time.FixedZone("CET", 3600))

	encoded := EncodeCursor(entryID, ts)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "/")

	c, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, entryID, c.ID)
	assert.True(t, ts.Equal(c.Timestamp))
	assert.Equal(t, time.UTC, c.Timestamp.Location())
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Equal(t, "", EncodeCursor("", time.Now()))
}

func TestDecodeCursor(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	tests := map[string]string{
		"not base64":    "%%%",
		"no separator":  enc("1575712800000000000"),
		"bad timestamp": enc("yesterday." + entryID),
		"empty id":      enc("1575712800000000000."),
		"id not a uuid": enc("1575712800000000000.42"),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor(raw)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 100},
		{"25", 25},
		{"0", 100},
		{"-3", 100},
		{"lots", 100},
		{"5000", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Limit(tt.raw, 100, 1000))
		})
	}
}
