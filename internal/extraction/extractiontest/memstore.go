// Package extractiontest provides an in-memory store implementing the
// extraction repositories, for tests that need real idempotency semantics
// without Postgres.
package extractiontest

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

// MemStore holds entries and watermarks. Transactions apply all of their
// writes or none of them.
type MemStore struct {
	mu         sync.Mutex
	entries    map[string]*domain.Entry
	watermarks []*domain.Watermark
	commits    int
	failTx     error
}

var (
	_ extraction.EntryRepositoryInterface     = (*MemStore)(nil)
	_ extraction.WatermarkRepositoryInterface = (*MemStore)(nil)
	_ extraction.TxRunner                     = (*MemStore)(nil)
)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*domain.Entry)}
}

// FailNextTx makes the next transaction fail with err after running fn.
func (s *MemStore) FailNextTx(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTx = err
}

// Commits returns the number of committed transactions.
func (s *MemStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Entries returns every stored entry ordered by source record, then material.
func (s *MemStore) Entries() []*domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceRecordID != out[j].SourceRecordID {
			return out[i].SourceRecordID < out[j].SourceRecordID
		}
		return out[i].MaterialID < out[j].MaterialID
	})
	return out
}

// Watermarks returns every stored watermark in insertion order.
func (s *MemStore) Watermarks() []*domain.Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Watermark(nil), s.watermarks...)
}

// Put stores an entry directly.
func (s *MemStore) Put(e *domain.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
}

func (s *MemStore) ExistsBySourceRecordID(_ context.Context, sourceRecordID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.SourceRecordID == sourceRecordID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) CreateBatch(_ context.Context, entries []*domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *MemStore) ListDelivered(_ context.Context, afterID string, limit int) ([]*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Entry
	for _, e := range s.entries {
		if e.Delivered && e.ID > afterID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Latest(_ context.Context) (*domain.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Watermark
	for _, w := range s.watermarks {
		if latest == nil || !w.Date.Before(latest.Date) {
			latest = w
		}
	}
	if latest == nil {
		return nil, domain.ErrWatermarkNotFound
	}
	return latest, nil
}

func (s *MemStore) Create(_ context.Context, w *domain.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks = append(s.watermarks, w)
	return nil
}

// WithTx buffers the transaction's writes and applies them on success.
func (s *MemStore) WithTx(ctx context.Context, fn func(repos extraction.TxRepositories) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTx != nil {
		err := s.failTx
		s.failTx = nil
		return err
	}
	for _, e := range tx.created {
		s.entries[e.ID] = e
	}
	for _, id := range tx.deleted {
		delete(s.entries, id)
	}
	s.watermarks = append(s.watermarks, tx.watermarks...)
	s.commits++
	return nil
}

type memTx struct {
	store      *MemStore
	created    []*domain.Entry
	deleted    []string
	watermarks []*domain.Watermark
}

func (t *memTx) Entries() extraction.EntryRepositoryInterface        { return (*memTxEntries)(t) }
func (t *memTx) Watermarks() extraction.WatermarkRepositoryInterface { return (*memTxWatermarks)(t) }

type memTxEntries memTx

func (t *memTxEntries) ExistsBySourceRecordID(ctx context.Context, sourceRecordID string) (bool, error) {
	for _, e := range t.created {
		if e.SourceRecordID == sourceRecordID {
			return true, nil
		}
	}
	return t.store.ExistsBySourceRecordID(ctx, sourceRecordID)
}

func (t *memTxEntries) CreateBatch(_ context.Context, entries []*domain.Entry) error {
	t.created = append(t.created, entries...)
	return nil
}

func (t *memTxEntries) ListDelivered(ctx context.Context, afterID string, limit int) ([]*domain.Entry, error) {
	return t.store.ListDelivered(ctx, afterID, limit)
}

func (t *memTxEntries) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	t.store.mu.Lock()
	var n int64
	for _, id := range ids {
		if _, ok := t.store.entries[id]; ok {
			n++
		}
	}
	t.store.mu.Unlock()
	t.deleted = append(t.deleted, ids...)
	return n, nil
}

type memTxWatermarks memTx

func (t *memTxWatermarks) Latest(ctx context.Context) (*domain.Watermark, error) {
	return t.store.Latest(ctx)
}

func (t *memTxWatermarks) Create(_ context.Context, w *domain.Watermark) error {
	t.watermarks = append(t.watermarks, w)
	return nil
}
