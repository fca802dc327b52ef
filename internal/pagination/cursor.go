// Package pagination implements the keyset cursors and page limits used by
// the entry listing.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor points just past the last entry of a page. Entries are ordered
// by (date, id), so both parts are needed to resume without gaps.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor renders the position after an entry as an opaque URL-safe
// token of the form base64("<unix nanos>.<uuid>").
func EncodeCursor(id string, timestamp time.Time) string {
	if id == "" {
		return ""
	}
	raw := strconv.FormatInt(timestamp.UnixNano(), 10) + "." + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// means the first page and decodes to nil.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{Timestamp: time.Unix(0, ts).UTC(), ID: parsed.String()}, nil
}

// Limit reads a page size from a query value. Missing or non-positive
// values fall back to def; anything above max is capped.
func Limit(raw string, def, max int) int {
	limit := def
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
