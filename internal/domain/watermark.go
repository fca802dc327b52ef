package domain

import (
	"fmt"
	"time"
)

// EpochDate is the resume point used before any watermark exists: the day
// cover statistics logging went into production.
var EpochDate = time.Date(2019, time.December, 1, 0, 0, 0, 0, time.UTC)

// Watermark records one fully extracted day.
type Watermark struct {
	ID           string
	Date         time.Time
	EntriesAdded int
	CreatedAt    time.Time
}

// NewWatermark creates a Watermark for the calendar day of date.
func NewWatermark(id string, date time.Time, entriesAdded int, createdAt time.Time) *Watermark {
	return &Watermark{
		ID:           id,
		Date:         Day(date),
		EntriesAdded: entriesAdded,
		CreatedAt:    createdAt,
	}
}

// ValidateWatermark validates a Watermark instance.
func ValidateWatermark(w *Watermark) error {
	if w == nil {
		return fmt.Errorf("watermark cannot be nil")
	}
	if w.ID == "" {
		return fmt.Errorf("watermark ID is required")
	}
	if w.Date.IsZero() {
		return fmt.Errorf("watermark date is required")
	}
	if w.EntriesAdded < 0 {
		return fmt.Errorf("watermark entries added cannot be negative")
	}
	return nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween lists every calendar day in [from, to], ascending.
func DaysBetween(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayFormat is the dd-mm-yyyy layout used for index names and CLI dates.
const DayFormat = "02-01-2006"

// ParseDay parses a dd-mm-yyyy date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}
	return t, nil
}
