package extraction

import (
	"context"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/search"
)

// Target is the sink extracted entries are written to.
type Target interface {
	Init(ctx context.Context) error
	Finish(ctx context.Context) error

	// Exists reports whether entries for the source record were already
	// written, making reruns over the same day idempotent.
	Exists(ctx context.Context, sourceRecordID string) (bool, error)
	Add(ctx context.Context, e *domain.Entry) error
	RecordWatermark(ctx context.Context, w *domain.Watermark) error
	Flush(ctx context.Context) error

	AcceptsKind(kind domain.OutcomeKind) bool
	SetAllowedKinds(kinds []domain.OutcomeKind)
}

// Cursor pages through one day of log records.
type Cursor interface {
	FetchPage(ctx context.Context, slot search.Slot, day time.Time, query string) (search.Page, error)
	Reset(ctx context.Context, slot search.Slot) error
}

// EntryRepositoryInterface defines the entry persistence used by extraction
// and retention.
type EntryRepositoryInterface interface {
	ExistsBySourceRecordID(ctx context.Context, sourceRecordID string) (bool, error)
	CreateBatch(ctx context.Context, entries []*domain.Entry) error
	ListDelivered(ctx context.Context, afterID string, limit int) ([]*domain.Entry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// WatermarkRepositoryInterface defines watermark persistence.
type WatermarkRepositoryInterface interface {
	Latest(ctx context.Context) (*domain.Watermark, error)
	Create(ctx context.Context, w *domain.Watermark) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Entries() EntryRepositoryInterface
	Watermarks() WatermarkRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
