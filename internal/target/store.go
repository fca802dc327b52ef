package target

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

// StoreTarget stages entries and watermarks in memory and commits them to
// the store in one transaction per flush.
type StoreTarget struct {
	kindFilter

	entries extraction.EntryRepositoryInterface
	tx      extraction.TxRunner

	staged       []*domain.Entry
	stagedSource map[string]struct{}
	watermarks   []*domain.Watermark
}

var _ extraction.Target = (*StoreTarget)(nil)

// NewStoreTarget creates a StoreTarget. entries is used outside
// transactions for existence checks.
func NewStoreTarget(entries extraction.EntryRepositoryInterface, tx extraction.TxRunner) *StoreTarget {
	return &StoreTarget{
		entries:      entries,
		tx:           tx,
		stagedSource: make(map[string]struct{}),
	}
}

func (t *StoreTarget) Init(_ context.Context) error {
	return nil
}

func (t *StoreTarget) Finish(_ context.Context) error {
	return nil
}

// Exists checks staged entries first, then the store.
func (t *StoreTarget) Exists(ctx context.Context, sourceRecordID string) (bool, error) {
	if _, ok := t.stagedSource[sourceRecordID]; ok {
		return true, nil
	}
	exists, err := t.entries.ExistsBySourceRecordID(ctx, sourceRecordID)
	if err != nil {
		return false, fmt.Errorf("failed to check entry existence: %w", err)
	}
	return exists, nil
}

func (t *StoreTarget) Add(_ context.Context, e *domain.Entry) error {
	if err := domain.ValidateEntry(e); err != nil {
		return err
	}
	t.staged = append(t.staged, e)
	t.stagedSource[e.SourceRecordID] = struct{}{}
	return nil
}

func (t *StoreTarget) RecordWatermark(_ context.Context, w *domain.Watermark) error {
	if err := domain.ValidateWatermark(w); err != nil {
		return err
	}
	t.watermarks = append(t.watermarks, w)
	return nil
}

// pending returns the number of staged entries.
func (t *StoreTarget) pending() int {
	return len(t.staged)
}

// Flush commits staged writes and releases them. Nothing is released when
// the commit fails.
func (t *StoreTarget) Flush(ctx context.Context) error {
	if len(t.staged) == 0 && len(t.watermarks) == 0 {
		return nil
	}

	err := t.tx.WithTx(ctx, func(repos extraction.TxRepositories) error {
		if err := repos.Entries().CreateBatch(ctx, t.staged); err != nil {
			return err
		}
		for _, w := range t.watermarks {
			if err := repos.Watermarks().Create(ctx, w); err != nil {
				return fmt.Errorf("failed to record watermark: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to flush entries: %w", err)
	}

	t.staged = nil
	t.stagedSource = make(map[string]struct{})
	t.watermarks = nil
	return nil
}
