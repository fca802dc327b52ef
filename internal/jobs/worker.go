package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Schedule yields the next activation after a given time.
// *cronexpr.Expression satisfies it.
type Schedule interface {
	Next(from time.Time) time.Time
}

// ParseSchedule parses a standard five field cron expression.
func ParseSchedule(expr string) (*cronexpr.Expression, error) {
	s, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Worker runs a JobProcessor on a schedule. Runs never overlap: the next
// activation is computed once the previous run returns.
type Worker struct {
	processor JobProcessor
	schedule  Schedule
	logger    *zap.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, schedule Schedule, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		processor: processor,
		schedule:  schedule,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start blocks running the schedule until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	for {
		now := time.Now()
		next := w.schedule.Next(now)
		if next.IsZero() {
			w.logger.Warn("worker stopped: schedule has no further activations")
			return
		}
		w.logger.Info("next job run scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			timer.Stop()
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-timer.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				w.logger.Error("error processing jobs", zap.Error(err))
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	w.logger.Info("worker shutdown complete")
}
