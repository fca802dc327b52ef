package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

// Extractor is the part of extraction.Service the scheduled job drives.
type Extractor interface {
	ExtractLatest(ctx context.Context, target extraction.Target) (extraction.Result, error)
	RemoveExtractedEntries(ctx context.Context, compareDate time.Time) (int64, error)
}

// ExtractionJob extracts every pending day into the store, then sweeps
// delivered entries older than the retention age.
type ExtractionJob struct {
	extractor     Extractor
	newTarget     func() extraction.Target
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

// NewExtractionJob creates an ExtractionJob. newTarget is called once per
// run. A negative retentionDays disables the sweep.
func NewExtractionJob(extractor Extractor, newTarget func() extraction.Target, retentionDays int, logger *zap.Logger) *ExtractionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionJob{
		extractor:     extractor,
		newTarget:     newTarget,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessJobs implements the JobProcessor interface
func (j *ExtractionJob) ProcessJobs(ctx context.Context) error {
	result, err := j.extractor.ExtractLatest(ctx, j.newTarget())
	switch {
	case errors.Is(err, domain.ErrScrollSlotBusy):
		// another run holds the slot; the next activation retries
		j.logger.Info("extraction skipped, another run is in progress")
	case err != nil:
		return fmt.Errorf("failed to extract statistics: %w", err)
	default:
		j.logger.Info("extraction run complete",
			zap.Int("days", len(result.Days)),
			zap.Int("entries_added", result.EntriesAdded))
	}

	if j.retentionDays < 0 {
		return nil
	}
	compareDate := j.now().AddDate(0, 0, -j.retentionDays)
	if _, err := j.extractor.RemoveExtractedEntries(ctx, compareDate); err != nil {
		return fmt.Errorf("failed to remove extracted entries: %w", err)
	}
	return nil
}
