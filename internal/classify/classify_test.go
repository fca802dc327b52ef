package classify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/fixtures"
)

func strPtr(s string) *string { return &s }

func v1Record(ids []string, files []string) domain.RawLogRecord {
	identifiers := make([]domain.SearchIdentifier, 0, len(ids))
	for _, id := range ids {
		identifiers = append(identifiers, domain.SearchIdentifier{Type: "pid", Value: id})
	}
	return domain.RawLogRecord{
		RecordID:  "rec-1",
		Timestamp: "2024-03-05T10:15:00+0100",
		Context: domain.RawContext{V1: &domain.ContextV1{
			ClientID:    "775100",
			Identifiers: identifiers,
			FileNames:   files,
		}},
	}
}

func v2Record(matches ...domain.Match) domain.RawLogRecord {
	return domain.RawLogRecord{
		RecordID:  "rec-2",
		Timestamp: "2024-03-05T10:15:00Z",
		Context:   domain.RawContext{V2: &domain.ContextV2{ClientID: "REST_API", Matches: matches}},
	}
}

func TestClassify_V2NullMatchIsNoHit(t *testing.T) {
	got, err := Classify(v2Record(domain.Match{Match: nil, Identifier: "X", Type: "isbn"}))
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, domain.OutcomeNoHit, c.OutcomeKind)
	assert.Nil(t, c.MatchedResourceID)
	assert.Equal(t, "X", c.MaterialID)
	assert.Equal(t, "isbn", c.IdentifierType)
	assert.JSONEq(t, `{"message":"image not found"}`, string(c.ResponsePayload))
}

func TestClassify_V2TwoMatchesAreHits(t *testing.T) {
	got, err := Classify(v2Record(
		domain.Match{Match: strPtr("a.jpg"), Identifier: "A", Type: "pid"},
		domain.Match{Match: strPtr("b.jpg"), Identifier: "B", Type: "pid"},
	))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, want := range []string{"a.jpg", "b.jpg"} {
		assert.Equal(t, domain.OutcomeHit, got[i].OutcomeKind)
		require.NotNil(t, got[i].MatchedResourceID)
		assert.Equal(t, want, *got[i].MatchedResourceID)
		assert.JSONEq(t, `{"message":"ok"}`, string(got[i].ResponsePayload))
	}
}

func TestClassify_V2EmptyMatches(t *testing.T) {
	got, err := Classify(v2Record())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClassify_V1SingleIdentifierSingleFile(t *testing.T) {
	got, err := Classify(v1Record([]string{"X"}, []string{"Y"}))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, domain.OutcomeHit, got[0].OutcomeKind)
	assert.Equal(t, "X", got[0].MaterialID)
	require.NotNil(t, got[0].MatchedResourceID)
	assert.Equal(t, "Y", *got[0].MatchedResourceID)
	assert.JSONEq(t, `{"message":"ok"}`, string(got[0].ResponsePayload))
}

func TestClassify_V1NoFiles(t *testing.T) {
	got, err := Classify(v1Record([]string{"X", "Y"}, nil))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, id := range []string{"X", "Y"} {
		assert.Equal(t, domain.OutcomeNoHit, got[i].OutcomeKind)
		assert.Equal(t, id, got[i].MaterialID)
		assert.Nil(t, got[i].MatchedResourceID)
		assert.JSONEq(t, `{"message":"image not found"}`, string(got[i].ResponsePayload))
	}
}

func TestClassify_V1Ambiguous(t *testing.T) {
	got, err := Classify(v1Record([]string{"X", "Y"}, []string{"Z"}))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, c := range got {
		assert.Equal(t, domain.OutcomeUndetermined, c.OutcomeKind)
		require.NotNil(t, c.MatchedResourceID)
		assert.Equal(t, domain.UndeterminedResourceID, *c.MatchedResourceID)
		assert.JSONEq(t, `{"message":"image maybe found"}`, string(c.ResponsePayload))
	}
}

func TestClassify_V1SingleIdentifierManyFilesIsUndetermined(t *testing.T) {
	got, err := Classify(v1Record([]string{"X"}, []string{"Y", "Z"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.OutcomeUndetermined, got[0].OutcomeKind)
}

func TestClassify_CommonFields(t *testing.T) {
	got, err := Classify(v1Record([]string{"X"}, []string{"Y"}))
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "rec-1", c.SourceRecordID)
	assert.Equal(t, "775100", c.AgencyID)
	assert.Equal(t, domain.EventRequestImage, c.EventKind)
	assert.True(t, c.Timestamp.Equal(time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)))
}

func TestClassify_MalformedTimestamp(t *testing.T) {
	rec := v1Record([]string{"X"}, nil)
	rec.Timestamp = "yesterday"

	_, err := Classify(rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
}

func TestClassify_MissingContext(t *testing.T) {
	_, err := Classify(domain.RawLogRecord{RecordID: "r", Timestamp: "2024-03-05T10:15:00Z"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
}

func TestClassify_EmptyIdentifierIsMalformed(t *testing.T) {
	tests := map[string]domain.RawLogRecord{
		"v2 empty identifier": v2Record(
			domain.Match{Match: strPtr("a.jpg"), Identifier: "870970-basis:1", Type: "pid"},
			domain.Match{Match: nil, Identifier: "", Type: "pid"},
		),
		"v1 null identifier": v1Record([]string{""}, nil),
	}
	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Classify(rec)
			assert.ErrorIs(t, err, domain.ErrMalformedRecord)
			assert.Nil(t, got)
		})
	}
}

func TestClassify_RepeatedIdentifierYieldsOneCandidate(t *testing.T) {
	var ctx domain.RawContext
	require.NoError(t, ctx.UnmarshalJSON([]byte(`{"searchParameters":{"pid":["X"],"faust":["X"]},"fileNames":[]}`)))

	got, err := Classify(domain.RawLogRecord{RecordID: "r", Timestamp: "2024-03-05T10:15:00Z", Context: ctx})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].MaterialID)
	assert.Equal(t, "faust", got[0].IdentifierType)
	assert.Equal(t, domain.OutcomeNoHit, got[0].OutcomeKind)
}

func TestClassify_V2RepeatedMatchKeepsFirst(t *testing.T) {
	got, err := Classify(v2Record(
		domain.Match{Match: strPtr("a.jpg"), Identifier: "X", Type: "pid"},
		domain.Match{Match: nil, Identifier: "X", Type: "pid"},
		domain.Match{Match: nil, Identifier: "Y", Type: "isbn"},
	))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.OutcomeHit, got[0].OutcomeKind)
	assert.Equal(t, "Y", got[1].MaterialID)
}

func TestParseTimestamp(t *testing.T) {
	for _, raw := range []string{
		"2019-12-07T08:00:00+0100",
		"2019-12-07T08:00:00+01:00",
		"2019-12-07T07:00:00Z",
		"2019-12-07T08:00:00.000000+0100",
	} {
		ts, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, ts.Equal(time.Date(2019, 12, 7, 7, 0, 0, 0, time.UTC)), raw)
	}
}

func TestClassify_Fixtures(t *testing.T) {
	counts := map[domain.OutcomeKind]int{}
	total := 0
	for _, rec := range fixtures.Records("es", time.Now()) {
		got, err := Classify(rec)
		require.NoError(t, err)
		for _, c := range got {
			counts[c.OutcomeKind]++
			total++
		}
	}

	assert.Equal(t, fixtures.EntriesPerDay, total)
	assert.Equal(t, 9, counts[domain.OutcomeHit])
	assert.Equal(t, 4, counts[domain.OutcomeNoHit])
	assert.Equal(t, 7, counts[domain.OutcomeUndetermined])
}
