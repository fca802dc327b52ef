// Package telemetry reports extraction runs and read API requests to
// Sentry. Every helper is safe to call when Sentry is not configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

const (
	serviceName  = "coverstats"
	flushTimeout = 5 * time.Second
)

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns the flush to run
// on shutdown. An empty DSN, or a DSN Sentry rejects, leaves reporting
// off and returns a no-op.
func Init(cfg Config, logger *zap.Logger) func() {
	if cfg.DSN == "" {
		return func() {}
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: func(ctx sentry.SamplingContext) float64 {
			// a run is one transaction with a span per day; keep them together
			if ctx.Parent != nil {
				if ctx.Parent.Sampled.Bool() {
					return 1.0
				}
				return 0.0
			}
			return cfg.TracesSampleRate
		},
	})
	if err != nil {
		logger.Warn("sentry disabled, initialization failed", zap.Error(err))
		return func() {}
	}

	logger.Info("sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(flushTimeout) }
}

// Span is a run transaction or a day span.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	s.inner.Finish()
}

// Fail marks the span errored and reports err on the hub bound to it.
func (s *Span) Fail(err error) {
	s.MarkFailed()
	CaptureError(s.inner.Context(), err)
}

// MarkFailed sets the error status without reporting anything. Day spans
// use it; the run that owns them reports the error once.
func (s *Span) MarkFailed() {
	s.inner.Status = sentry.SpanStatusInternalError
}

// StartRun opens the transaction for one extraction, export or retention
// sweep. Each run gets its own hub so tags set on one run never leak into
// another running concurrently.
func StartRun(ctx context.Context, operation string) (context.Context, *Span) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetTag("operation", operation)
	ctx = sentry.SetHubOnContext(ctx, hub)

	span := sentry.StartTransaction(ctx, "extraction."+operation, sentry.WithOpName("extraction"))
	return span.Context(), &Span{inner: span}
}

// StartDay opens a child span for scanning one day's log index.
func StartDay(ctx context.Context, day time.Time, index string) (context.Context, *Span) {
	span := sentry.StartSpan(ctx, "extraction.day", sentry.WithDescription(index))
	span.SetTag("day", day.Format(domain.DayFormat))
	span.SetTag("index", index)
	return span.Context(), &Span{inner: span}
}

// DayCompleted leaves a breadcrumb so an error later in the run shows
// which days were already stored.
func DayCompleted(ctx context.Context, day time.Time, entriesAdded int) {
	addBreadcrumb(ctx, &sentry.Breadcrumb{
		Category:  "extraction",
		Message:   fmt.Sprintf("day %s stored %d entries", day.Format(domain.DayFormat), entriesAdded),
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

// CaptureError reports err on the hub in ctx, falling back to the global one.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func addBreadcrumb(ctx context.Context, b *sentry.Breadcrumb) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(b, nil)
		return
	}
	sentry.AddBreadcrumb(b)
}
