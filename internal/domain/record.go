package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RawLogRecord is one hit returned by the log index.
type RawLogRecord struct {
	RecordID  string
	Timestamp string
	Context   RawContext
}

// RawContext is the logged lookup context. Exactly one of V1 and V2 is set.
type RawContext struct {
	V1 *ContextV1
	V2 *ContextV2
}

// SearchIdentifier is an identifier searched for, tagged with its type.
type SearchIdentifier struct {
	Type  string
	Value string
}

// ContextV1 is the original log schema: identifiers and file names with no
// pairing between them.
type ContextV1 struct {
	ClientID    string
	Identifiers []SearchIdentifier
	FileNames   []string
}

// Match pairs one searched identifier with the file found for it, if any.
type Match struct {
	Match      *string `json:"match"`
	Identifier string  `json:"identifier"`
	Type       string  `json:"type"`
}

// ContextV2 is the later log schema with explicit matches.
type ContextV2 struct {
	ClientID string
	Matches  []Match
}

// ClientID returns the requesting client of whichever schema is present.
func (c RawContext) ClientID() string {
	switch {
	case c.V2 != nil:
		return c.V2.ClientID
	case c.V1 != nil:
		return c.V1.ClientID
	}
	return ""
}

// rawContext mirrors the logged JSON. Both schemas share it; the presence
// of matches selects v2.
type rawContext struct {
	ClientID         string              `json:"clientID"`
	SearchParameters map[string][]string `json:"searchParameters"`
	IsType           string              `json:"isType"`
	IsIdentifiers    []string            `json:"isIdentifiers"`
	FileNames        []string            `json:"fileNames"`
	Matches          *[]Match            `json:"matches"`
}

// UnmarshalJSON decides the schema once, at decode time.
func (c *RawContext) UnmarshalJSON(data []byte) error {
	var raw rawContext
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	if raw.Matches != nil {
		c.V1 = nil
		c.V2 = &ContextV2{ClientID: raw.ClientID, Matches: *raw.Matches}
		return nil
	}

	v1 := &ContextV1{ClientID: raw.ClientID, FileNames: raw.FileNames}
	if raw.SearchParameters != nil {
		// Map order is random; sort the types so classification is stable.
		types := make([]string, 0, len(raw.SearchParameters))
		for t := range raw.SearchParameters {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			for _, id := range raw.SearchParameters[t] {
				v1.Identifiers = append(v1.Identifiers, SearchIdentifier{Type: t, Value: id})
			}
		}
	} else {
		for _, id := range raw.IsIdentifiers {
			v1.Identifiers = append(v1.Identifiers, SearchIdentifier{Type: raw.IsType, Value: id})
		}
	}
	c.V1 = v1
	c.V2 = nil
	return nil
}

// MarshalJSON writes the context back in its logged shape.
func (c RawContext) MarshalJSON() ([]byte, error) {
	switch {
	case c.V2 != nil:
		matches := c.V2.Matches
		if matches == nil {
			matches = []Match{}
		}
		return json.Marshal(rawContext{ClientID: c.V2.ClientID, Matches: &matches})
	case c.V1 != nil:
		params := make(map[string][]string)
		for _, id := range c.V1.Identifiers {
			params[id.Type] = append(params[id.Type], id.Value)
		}
		return json.Marshal(rawContext{ClientID: c.V1.ClientID, SearchParameters: params, FileNames: c.V1.FileNames})
	}
	return nil, fmt.Errorf("log context has no schema")
}
