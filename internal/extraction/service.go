// Package extraction turns daily log indexes into cover statistics entries
// and sweeps delivered entries once they have aged out.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/classify"
	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/metrics"
	"github.com/cloo-solutions/coverstats/internal/search"
	"github.com/cloo-solutions/coverstats/internal/telemetry"
)

const (
	// BatchSize is the number of writes between target flushes, and the
	// size of retention delete batches.
	BatchSize = 50

	retentionPageSize = 500
)

// DayResult is the outcome of extracting one day.
type DayResult struct {
	Day          time.Time
	Records      int
	EntriesAdded int
	Duplicates   int
	Filtered     int
	Malformed    int
}

func (d DayResult) merge(r recordResult) DayResult {
	d.Records++
	d.EntriesAdded += r.added
	d.Filtered += r.filtered
	if r.duplicate {
		d.Duplicates++
	}
	if r.malformed {
		d.Malformed++
	}
	return d
}

// Result is the outcome of an extraction run.
type Result struct {
	Days         []DayResult
	EntriesAdded int
}

func (r *Result) add(d DayResult) {
	r.Days = append(r.Days, d)
	r.EntriesAdded += d.EntriesAdded
}

type recordResult struct {
	added     int
	filtered  int
	duplicate bool
	malformed bool
}

// Service runs extraction and retention.
type Service struct {
	cursor     Cursor
	slot       search.Slot
	entries    EntryRepositoryInterface
	watermarks WatermarkRepositoryInterface
	tx         TxRunner
	logger     *zap.Logger
	metrics    *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for "today" and delivery ages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides entry and watermark id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service. The slot is held for the duration of every
// extraction run, so one slot must not be shared by concurrent runs.
func NewService(
	cursor Cursor,
	slot search.Slot,
	entries EntryRepositoryInterface,
	watermarks WatermarkRepositoryInterface,
	tx TxRunner,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cursor:     cursor,
		slot:       slot,
		entries:    entries,
		watermarks: watermarks,
		tx:         tx,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PendingDays returns the days after the latest watermark up to today, or
// from the epoch when nothing was extracted yet.
func (s *Service) PendingDays(ctx context.Context) ([]time.Time, error) {
	from := domain.EpochDate
	latest, err := s.watermarks.Latest(ctx)
	switch {
	case err == nil:
		from = domain.Day(latest.Date).AddDate(0, 0, 1)
	case errors.Is(err, domain.ErrWatermarkNotFound):
	default:
		return nil, fmt.Errorf("failed to load latest watermark: %w", err)
	}

	today := domain.Day(s.now())
	if from.After(today) {
		return nil, nil
	}
	return domain.DaysBetween(from, today), nil
}

// ExtractLatest extracts every day not yet covered by a watermark.
func (s *Service) ExtractLatest(ctx context.Context, target Target) (Result, error) {
	days, err := s.PendingDays(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(days) == 0 {
		s.logger.Info("nothing to extract, watermark is current")
		return Result{}, nil
	}
	return s.run(ctx, "extract_latest", days, target)
}

// ExtractRange extracts the inclusive day range [from, to].
func (s *Service) ExtractRange(ctx context.Context, from, to time.Time, target Target) (Result, error) {
	if domain.Day(from).After(domain.Day(to)) {
		return Result{}, domain.ErrInvalidDateRange
	}
	return s.ExtractDays(ctx, domain.DaysBetween(from, to), target)
}

// ExtractDays extracts the given days in order.
func (s *Service) ExtractDays(ctx context.Context, days []time.Time, target Target) (Result, error) {
	return s.run(ctx, "extract_days", days, target)
}

func (s *Service) run(ctx context.Context, operation string, days []time.Time, target Target) (result Result, err error) {
	if err := s.slot.Acquire(ctx); err != nil {
		return Result{}, err
	}
	defer func() {
		if rerr := s.slot.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("failed to release scroll slot", zap.Error(rerr))
		}
	}()

	ctx, span := telemetry.StartRun(ctx, operation)
	defer span.End()

	progress := NewProgress(s.logger)
	progress.Start(operation, len(days))

	if err := target.Init(ctx); err != nil {
		span.Fail(err)
		return Result{}, fmt.Errorf("failed to initialize target: %w", err)
	}

	for _, day := range days {
		dr, err := s.extractDay(ctx, day, target)
		if err == nil {
			err = s.completeDay(ctx, dr, target)
		}
		if err != nil {
			// close the target but keep the watermark where it was
			if ferr := target.Finish(ctx); ferr != nil {
				s.logger.Warn("failed to finish target after error", zap.Error(ferr))
			}
			s.logger.Error("extraction aborted",
				zap.String("day", day.Format(domain.DayFormat)),
				zap.Int("entries_added", result.EntriesAdded),
				zap.Error(err))
			span.Fail(err)
			return result, err
		}

		result.add(dr)
		progress.Advance(1)
		progress.Message("day extracted",
			zap.String("day", day.Format(domain.DayFormat)),
			zap.Int("records", dr.Records),
			zap.Int("entries_added", dr.EntriesAdded),
			zap.Int("duplicates", dr.Duplicates),
			zap.Int("filtered", dr.Filtered),
			zap.Int("malformed", dr.Malformed))
	}

	if err := target.Finish(ctx); err != nil {
		span.Fail(err)
		return result, fmt.Errorf("failed to finish target: %w", err)
	}

	progress.Finish(zap.Int("entries_added", result.EntriesAdded))
	return result, nil
}

func (s *Service) completeDay(ctx context.Context, dr DayResult, target Target) error {
	w := domain.NewWatermark(s.newID(), dr.Day, dr.EntriesAdded, s.now())
	if err := target.RecordWatermark(ctx, w); err != nil {
		return fmt.Errorf("failed to record watermark: %w", err)
	}
	if err := target.Flush(ctx); err != nil {
		return err
	}
	s.metrics.RecordDayExtracted()
	telemetry.DayCompleted(ctx, dr.Day, dr.EntriesAdded)
	return nil
}

// extractDay scans one day. The scroll is reset before returning whether
// or not the scan succeeded.
func (s *Service) extractDay(ctx context.Context, day time.Time, target Target) (dr DayResult, err error) {
	ctx, span := telemetry.StartDay(ctx, day, search.IndexName(day))
	defer span.End()

	defer func() {
		if rerr := s.cursor.Reset(context.WithoutCancel(ctx), s.slot); rerr != nil {
			s.logger.Warn("failed to reset scroll cursor", zap.Error(rerr))
			if err == nil {
				err = fmt.Errorf("failed to reset scroll cursor: %w", rerr)
			}
		}
		if err != nil {
			span.MarkFailed()
		}
	}()

	dr = DayResult{Day: domain.Day(day)}
	pending := 0
	for {
		page, err := s.cursor.FetchPage(ctx, s.slot, day, search.QueryText)
		if err != nil {
			return dr, err
		}
		if page.Exhausted() {
			return dr, nil
		}
		dr.Malformed += page.Skipped

		for _, rec := range page.Records {
			rr, err := s.processRecord(ctx, rec, target)
			if err != nil {
				return dr, err
			}
			dr = dr.merge(rr)

			pending += rr.added
			if pending >= BatchSize {
				if err := target.Flush(ctx); err != nil {
					return dr, err
				}
				pending = 0
			}
		}
	}
}

func (s *Service) processRecord(ctx context.Context, rec domain.RawLogRecord, target Target) (recordResult, error) {
	var rr recordResult

	exists, err := target.Exists(ctx, rec.RecordID)
	if err != nil {
		return rr, err
	}
	if exists {
		rr.duplicate = true
		s.metrics.RecordSkipped(metrics.SkipReasonDuplicate)
		return rr, nil
	}

	candidates, err := classify.Classify(rec)
	if err != nil {
		s.logger.Warn("skipping malformed log record",
			zap.String("record_id", rec.RecordID), zap.Error(err))
		s.metrics.RecordSkipped(metrics.SkipReasonMalformed)
		telemetry.CaptureError(ctx, fmt.Errorf("record %s: %w", rec.RecordID, err))
		rr.malformed = true
		return rr, nil
	}

	for _, c := range candidates {
		if !target.AcceptsKind(c.OutcomeKind) {
			rr.filtered++
			s.metrics.RecordSkipped(metrics.SkipReasonFiltered)
			continue
		}
		if err := target.Add(ctx, domain.NewEntry(s.newID(), c)); err != nil {
			return rr, fmt.Errorf("failed to add entry for record %s: %w", rec.RecordID, err)
		}
		rr.added++
		s.metrics.RecordEntryAdded(string(c.OutcomeKind))
	}
	return rr, nil
}

// RemoveExtractedEntries deletes delivered entries whose delivery is at
// least a whole day older than compareDate. It returns the number removed.
func (s *Service) RemoveExtractedEntries(ctx context.Context, compareDate time.Time) (int64, error) {
	ctx, span := telemetry.StartRun(ctx, "retention")
	defer span.End()

	var (
		removed int64
		batch   []string
		afterID string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.deleteBatch(ctx, batch)
		if err != nil {
			return err
		}
		removed += n
		batch = nil
		return nil
	}

	for {
		page, err := s.entries.ListDelivered(ctx, afterID, retentionPageSize)
		if err != nil {
			span.Fail(err)
			return removed, fmt.Errorf("failed to list delivered entries: %w", err)
		}
		for _, e := range page {
			afterID = e.ID
			if !expired(e, compareDate) {
				continue
			}
			batch = append(batch, e.ID)
			if len(batch) >= BatchSize {
				if err := flush(); err != nil {
					span.Fail(err)
					return removed, err
				}
			}
		}
		if len(page) < retentionPageSize {
			break
		}
	}
	if err := flush(); err != nil {
		span.Fail(err)
		return removed, err
	}

	s.logger.Info("retention sweep finished",
		zap.Time("compare_date", compareDate),
		zap.Int64("removed", removed))
	return removed, nil
}

func (s *Service) deleteBatch(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		var err error
		n, err = repos.Entries().DeleteByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete delivered entries: %w", err)
	}
	s.metrics.RecordRemoved(int(n))
	return n, nil
}

func expired(e *domain.Entry, compareDate time.Time) bool {
	if !e.Delivered || e.DeliveredAt == nil {
		return false
	}
	return e.DeliveredAt.Before(compareDate) && compareDate.Sub(*e.DeliveredAt) >= 24*time.Hour
}
