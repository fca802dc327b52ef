// Package classify turns raw cover lookup log records into outcome candidates.
package classify

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

// timestampLayouts are tried in order. The log producer writes ISO-8601
// with a +hhmm offset, which RFC 3339 does not accept.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
}

// ParseTimestamp parses a log record timestamp.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", domain.ErrMalformedRecord, raw)
}

// Classify returns the outcome candidates for one log record. A record with
// no identifiers yields no candidates; an empty identifier makes the whole
// record malformed. An identifier searched more than once yields a single
// candidate, typed by its first occurrence.
func Classify(rec domain.RawLogRecord) ([]domain.Candidate, error) {
	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return nil, err
	}

	base := domain.Candidate{
		SourceRecordID: rec.RecordID,
		Timestamp:      ts,
		AgencyID:       rec.Context.ClientID(),
		EventKind:      domain.EventRequestImage,
	}

	var candidates []domain.Candidate
	switch {
	case rec.Context.V2 != nil:
		candidates = classifyV2(base, rec.Context.V2)
	case rec.Context.V1 != nil:
		candidates = classifyV1(base, rec.Context.V1)
	default:
		return nil, fmt.Errorf("%w: record %s has no context", domain.ErrMalformedRecord, rec.RecordID)
	}
	return uniqueMaterials(rec.RecordID, candidates)
}

// uniqueMaterials keeps one candidate per material id, so a record never
// produces two entries for the same material.
func uniqueMaterials(recordID string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	seen := make(map[string]bool, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if c.MaterialID == "" {
			return nil, fmt.Errorf("%w: record %s has an empty %q identifier",
				domain.ErrMalformedRecord, recordID, c.IdentifierType)
		}
		if seen[c.MaterialID] {
			continue
		}
		seen[c.MaterialID] = true
		unique = append(unique, c)
	}
	return unique, nil
}

func classifyV2(base domain.Candidate, c *domain.ContextV2) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(c.Matches))
	for _, m := range c.Matches {
		cand := base
		cand.IdentifierType = m.Type
		cand.MaterialID = m.Identifier
		if m.Match == nil {
			cand.OutcomeKind = domain.OutcomeNoHit
			cand.ResponsePayload = domain.ResponsePayloadFor(domain.ResponseMessageNotFound)
		} else {
			match := *m.Match
			cand.OutcomeKind = domain.OutcomeHit
			cand.ResponsePayload = domain.ResponsePayloadFor(domain.ResponseMessageOK)
			cand.MatchedResourceID = &match
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

func classifyV1(base domain.Candidate, c *domain.ContextV1) []domain.Candidate {
	if len(c.Identifiers) == 1 && len(c.FileNames) == 1 {
		file := c.FileNames[0]
		cand := base
		cand.OutcomeKind = domain.OutcomeHit
		cand.IdentifierType = c.Identifiers[0].Type
		cand.MaterialID = c.Identifiers[0].Value
		cand.ResponsePayload = domain.ResponsePayloadFor(domain.ResponseMessageOK)
		cand.MatchedResourceID = &file
		return []domain.Candidate{cand}
	}

	kind := domain.OutcomeUndetermined
	message := domain.ResponseMessageMaybeFound
	if len(c.FileNames) == 0 {
		kind = domain.OutcomeNoHit
		message = domain.ResponseMessageNotFound
	}

	candidates := make([]domain.Candidate, 0, len(c.Identifiers))
	for _, id := range c.Identifiers {
		cand := base
		cand.OutcomeKind = kind
		cand.IdentifierType = id.Type
		cand.MaterialID = id.Value
		cand.ResponsePayload = domain.ResponsePayloadFor(message)
		if kind == domain.OutcomeUndetermined {
			undetermined := domain.UndeterminedResourceID
			cand.MatchedResourceID = &undetermined
		}
		candidates = append(candidates, cand)
	}
	return candidates
}
