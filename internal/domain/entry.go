package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// EventRequestImage is the only event kind produced by extraction.
	EventRequestImage = "request_image"

	// ServiceClientID is the client id stamped on every entry; the requesting
	// library is kept in AgencyID.
	ServiceClientID = "CoverService"

	// UndeterminedResourceID marks entries whose lookup returned files that
	// could not be paired with identifiers. It is a value, not an absence.
	UndeterminedResourceID = "undetermined"
)

// Response messages stored in Entry.ResponsePayload.
const (
	ResponseMessageOK         = "ok"
	ResponseMessageNotFound   = "image not found"
	ResponseMessageMaybeFound = "image maybe found"
)

// Entry is one normalized cover image lookup outcome.
type Entry struct {
	ID                string          `json:"id"`
	SourceRecordID    string          `json:"elasticId"`
	Timestamp         time.Time       `json:"date"`
	ClientID          string          `json:"clientId"`
	AgencyID          string          `json:"agency"`
	EventKind         string          `json:"event"`
	IdentifierType    string          `json:"identifierType"`
	MaterialID        string          `json:"materialId"`
	ResponsePayload   json.RawMessage `json:"response"`
	MatchedResourceID *string         `json:"imageId"`
	Delivered         bool            `json:"extracted"`
	DeliveredAt       *time.Time      `json:"extractionDate"`
}

// NewEntry creates an undelivered Entry.
func NewEntry(id string, c Candidate) *Entry {
	return &Entry{
		ID:                id,
		SourceRecordID:    c.SourceRecordID,
		Timestamp:         c.Timestamp,
		ClientID:          ServiceClientID,
		AgencyID:          c.AgencyID,
		EventKind:         c.EventKind,
		IdentifierType:    c.IdentifierType,
		MaterialID:        c.MaterialID,
		ResponsePayload:   c.ResponsePayload,
		MatchedResourceID: c.MatchedResourceID,
		Delivered:         false,
	}
}

// ValidateEntry validates an Entry before it is persisted.
func ValidateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if e.ID == "" {
		return fmt.Errorf("entry ID is required")
	}
	if e.SourceRecordID == "" {
		return fmt.Errorf("entry source record ID is required")
	}
	if e.MaterialID == "" {
		return fmt.Errorf("entry material ID is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("entry timestamp is required")
	}
	if e.Delivered && e.DeliveredAt == nil {
		return fmt.Errorf("delivered entry must have a delivery time")
	}
	return nil
}

// ImageID returns the matched resource id or "" when there is none.
func (e *Entry) ImageID() string {
	if e.MatchedResourceID == nil {
		return ""
	}
	return *e.MatchedResourceID
}

// ResponsePayloadFor renders the small JSON payload stored with an entry.
func ResponsePayloadFor(message string) json.RawMessage {
	payload, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: message})
	return payload
}
