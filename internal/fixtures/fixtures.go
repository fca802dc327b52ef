// Package fixtures holds the canonical cover lookup log contexts used to seed
// a search index and to drive tests.
package fixtures

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

//go:embed contexts.json
var contextsJSON []byte

// EntriesPerDay is the number of entries one full set of contexts classifies into.
const EntriesPerDay = 20

// Contexts returns the logged contexts: five in the v1 schema followed by
// five in the v2 schema.
func Contexts() []json.RawMessage {
	var contexts []json.RawMessage
	if err := json.Unmarshal(contextsJSON, &contexts); err != nil {
		panic(fmt.Sprintf("fixtures: invalid contexts.json: %v", err))
	}
	return contexts
}

// Records decodes the contexts into log records stamped at the given time.
// Record ids are "<prefix>-1" through "<prefix>-10".
func Records(prefix string, at time.Time) []domain.RawLogRecord {
	raw := Contexts()
	records := make([]domain.RawLogRecord, 0, len(raw))
	for i, data := range raw {
		var c domain.RawContext
		if err := json.Unmarshal(data, &c); err != nil {
			panic(fmt.Sprintf("fixtures: context %d: %v", i, err))
		}
		records = append(records, domain.RawLogRecord{
			RecordID:  fmt.Sprintf("%s-%d", prefix, i+1),
			Timestamp: at.Format("2006-01-02T15:04:05-0700"),
			Context:   c,
		})
	}
	return records
}
