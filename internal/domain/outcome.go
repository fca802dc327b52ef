package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OutcomeKind classifies one identifier's image lookup.
type OutcomeKind string

const (
	OutcomeHit          OutcomeKind = "hit"
	OutcomeNoHit        OutcomeKind = "nohit"
	OutcomeUndetermined OutcomeKind = "undetermined"
)

// AllOutcomeKinds lists the valid kinds in their canonical order.
var AllOutcomeKinds = []OutcomeKind{OutcomeHit, OutcomeNoHit, OutcomeUndetermined}

// IsValid reports whether k is a known outcome kind.
func (k OutcomeKind) IsValid() bool {
	switch k {
	case OutcomeHit, OutcomeNoHit, OutcomeUndetermined:
		return true
	}
	return false
}

// ParseOutcomeKinds parses a comma separated kind list such as "hit,nohit".
// Duplicates are dropped and an empty input yields an empty list.
func ParseOutcomeKinds(raw string) ([]OutcomeKind, error) {
	var kinds []OutcomeKind
	seen := make(map[OutcomeKind]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind := OutcomeKind(part)
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: %q is not one of hit, nohit, undetermined", ErrInvalidOutcomeKind, part)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Candidate is a classified outcome that has not yet been written to a target.
type Candidate struct {
	OutcomeKind       OutcomeKind
	SourceRecordID    string
	Timestamp         time.Time
	AgencyID          string
	EventKind         string
	IdentifierType    string
	MaterialID        string
	ResponsePayload   json.RawMessage
	MatchedResourceID *string
}
