package extraction

import (
	"time"

	"go.uber.org/zap"
)

// Progress reports a long running operation through the logger. Messages
// are logged at info and per-item advances at debug.
type Progress struct {
	logger *zap.Logger

	operation string
	total     int
	done      int
	started   time.Time
}

// NewProgress creates a Progress. A nil logger discards everything.
func NewProgress(logger *zap.Logger) *Progress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Progress{logger: logger}
}

// Start begins an operation over total items. total may be 0 when unknown.
func (p *Progress) Start(operation string, total int) {
	p.operation = operation
	p.total = total
	p.done = 0
	p.started = time.Now()
	p.logger.Info("started",
		zap.String("operation", operation),
		zap.Int("total", total))
}

// Message logs a status line for the running operation.
func (p *Progress) Message(msg string, fields ...zap.Field) {
	p.logger.Info(msg, append(fields, zap.String("operation", p.operation))...)
}

// Advance marks n more items done.
func (p *Progress) Advance(n int) {
	p.done += n
	if ce := p.logger.Check(zap.DebugLevel, "progress"); ce != nil {
		ce.Write(
			zap.String("operation", p.operation),
			zap.Int("done", p.done),
			zap.Int("total", p.total))
	}
}

// Done returns the number of items advanced since Start.
func (p *Progress) Done() int {
	return p.done
}

// Finish logs the final counters with fields describing the outcome.
func (p *Progress) Finish(fields ...zap.Field) {
	p.logger.Info("finished", append(fields,
		zap.String("operation", p.operation),
		zap.Int("done", p.done),
		zap.Duration("elapsed", time.Since(p.started)))...)
}
