package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	now := time.Now().UTC()
	image := "http://covers.local/1.jpg"
	c := Candidate{
		OutcomeKind:       OutcomeHit,
		SourceRecordID:    "es-1",
		Timestamp:         now,
		AgencyID:          "123456",
		EventKind:         EventRequestImage,
		IdentifierType:    "isbn",
		MaterialID:        "9788740602456",
		ResponsePayload:   ResponsePayloadFor(ResponseMessageOK),
		MatchedResourceID: &image,
	}

	e := NewEntry("entry-1", c)

	assert.Equal(t, "entry-1", e.ID)
	assert.Equal(t, "es-1", e.SourceRecordID)
	assert.Equal(t, ServiceClientID, e.ClientID)
	assert.Equal(t, "123456", e.AgencyID)
	assert.Equal(t, EventRequestImage, e.EventKind)
	assert.Equal(t, image, e.ImageID())
	assert.JSONEq(t, `{"message":"ok"}`, string(e.ResponsePayload))
	assert.False(t, e.Delivered)
	assert.Nil(t, e.DeliveredAt)
	require.NoError(t, ValidateEntry(e))
}

func TestValidateEntry(t *testing.T) {
	now := time.Now()
	valid := func() *Entry {
		return &Entry{ID: "e1", SourceRecordID: "s1", MaterialID: "m1", Timestamp: now}
	}

	tests := []struct {
		name    string
		mutate  func(e *Entry) *Entry
		wantErr string
	}{
		{name: "valid", mutate: func(e *Entry) *Entry { return e }},
		{name: "nil", mutate: func(e *Entry) *Entry { return nil }, wantErr: "cannot be nil"},
		{name: "missing id", mutate: func(e *Entry) *Entry { e.ID = ""; return e }, wantErr: "ID is required"},
		{name: "missing source", mutate: func(e *Entry) *Entry { e.SourceRecordID = ""; return e }, wantErr: "source record"},
		{name: "missing material", mutate: func(e *Entry) *Entry { e.MaterialID = ""; return e }, wantErr: "material"},
		{name: "missing timestamp", mutate: func(e *Entry) *Entry { e.Timestamp = time.Time{}; return e }, wantErr: "timestamp"},
		{name: "delivered without time", mutate: func(e *Entry) *Entry { e.Delivered = true; return e }, wantErr: "delivery time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.mutate(valid()))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEntry_ImageIDUndeterminedIsAValue(t *testing.T) {
	undetermined := UndeterminedResourceID
	e := &Entry{MatchedResourceID: &undetermined}
	assert.Equal(t, "undetermined", e.ImageID())

	e.MatchedResourceID = nil
	assert.Equal(t, "", e.ImageID())
}

func TestParseOutcomeKinds(t *testing.T) {
	kinds, err := ParseOutcomeKinds("hit, nohit,hit")
	require.NoError(t, err)
	assert.Equal(t, []OutcomeKind{OutcomeHit, OutcomeNoHit}, kinds)

	kinds, err = ParseOutcomeKinds("")
	require.NoError(t, err)
	assert.Empty(t, kinds)

	_, err = ParseOutcomeKinds("hit,maybe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOutcomeKind))
	assert.Contains(t, err.Error(), "maybe")
}

func TestDomainError_IsMatchesWrappedSentinel(t *testing.T) {
	err := NewDomainErrorWithCause(ErrCodeNotFound, "entry not found", errors.New("no rows"))
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.False(t, errors.Is(err, ErrWatermarkNotFound))
	assert.Equal(t, "[NOT_FOUND] entry not found: no rows", err.Error())
}
