package target

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{
	"elasticId",
	"date",
	"clientId",
	"agency",
	"event",
	"identifierType",
	"materialId",
	"response",
	"imageId",
}

// FileTarget streams entries to a CSV export. It has no notion of
// existing entries or watermarks.
type FileTarget struct {
	kindFilter

	path   string
	file   *os.File
	out    io.Writer
	writer *csv.Writer
	rows   int
}

var _ extraction.Target = (*FileTarget)(nil)

// NewFileTarget creates a FileTarget writing to path. The file is created
// by Init and closed by Finish.
func NewFileTarget(path string) *FileTarget {
	return &FileTarget{path: path}
}

// NewWriterTarget creates a FileTarget writing to w, which it never closes.
func NewWriterTarget(w io.Writer) *FileTarget {
	return &FileTarget{out: w}
}

// Path returns the export file path, or "" for a writer target.
func (t *FileTarget) Path() string {
	return t.path
}

// Rows returns the number of entry rows written.
func (t *FileTarget) Rows() int {
	return t.rows
}

func (t *FileTarget) Init(_ context.Context) error {
	out := t.out
	if t.path != "" {
		f, err := os.Create(t.path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		t.file = f
		out = f
	}
	if out == nil {
		return fmt.Errorf("file target has no output")
	}

	t.writer = csv.NewWriter(out)
	t.rows = 0
	if err := t.writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	return nil
}

func (t *FileTarget) Finish(_ context.Context) error {
	if t.writer == nil {
		return nil
	}
	t.writer.Flush()
	err := t.writer.Error()
	t.writer = nil

	if t.file != nil {
		if cerr := t.file.Close(); err == nil {
			err = cerr
		}
		t.file = nil
	}
	if err != nil {
		return fmt.Errorf("failed to finish export: %w", err)
	}
	return nil
}

// Exists always reports false: an export is append-only.
func (t *FileTarget) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (t *FileTarget) Add(_ context.Context, e *domain.Entry) error {
	if t.writer == nil {
		return fmt.Errorf("file target is not initialized")
	}
	row := []string{
		e.SourceRecordID,
		e.Timestamp.Format(time.RFC3339),
		e.ClientID,
		e.AgencyID,
		e.EventKind,
		e.IdentifierType,
		e.MaterialID,
		string(e.ResponsePayload),
		e.ImageID(),
	}
	if err := t.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write export row: %w", err)
	}
	t.rows++
	return nil
}

func (t *FileTarget) RecordWatermark(_ context.Context, _ *domain.Watermark) error {
	return nil
}

// Flush pushes buffered rows to the output.
func (t *FileTarget) Flush(_ context.Context) error {
	if t.writer == nil {
		return nil
	}
	t.writer.Flush()
	return t.writer.Error()
}
