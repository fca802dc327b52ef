package target

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) ExistsBySourceRecordID(ctx context.Context, sourceRecordID string) (bool, error) {
	args := m.Called(ctx, sourceRecordID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntryRepository) CreateBatch(ctx context.Context, entries []*domain.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockEntryRepository) ListDelivered(ctx context.Context, afterID string, limit int) ([]*domain.Entry, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entry), args.Error(1)
}

func (m *MockEntryRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

type MockWatermarkRepository struct {
	mock.Mock
}

func (m *MockWatermarkRepository) Latest(ctx context.Context) (*domain.Watermark, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Watermark), args.Error(1)
}

func (m *MockWatermarkRepository) Create(ctx context.Context, w *domain.Watermark) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

type testTxRepos struct {
	entries    extraction.EntryRepositoryInterface
	watermarks extraction.WatermarkRepositoryInterface
}

func (t *testTxRepos) Entries() extraction.EntryRepositoryInterface {
	return t.entries
}

func (t *testTxRepos) Watermarks() extraction.WatermarkRepositoryInterface {
	return t.watermarks
}

type testTxRunner struct {
	repos  extraction.TxRepositories
	called int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos extraction.TxRepositories) error) error {
	t.called++
	return fn(t.repos)
}

func newTestEntry(id, source string) *domain.Entry {
	return domain.NewEntry(id, domain.Candidate{
		OutcomeKind:     domain.OutcomeHit,
		SourceRecordID:  source,
		Timestamp:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		AgencyID:        "190101",
		EventKind:       domain.EventRequestImage,
		IdentifierType:  "pid",
		MaterialID:      "870970-basis:1",
		ResponsePayload: domain.ResponsePayloadFor(domain.ResponseMessageOK),
	})
}

func newStoreTarget() (*StoreTarget, *MockEntryRepository, *MockWatermarkRepository, *testTxRunner) {
	entries := new(MockEntryRepository)
	watermarks := new(MockWatermarkRepository)
	tx := &testTxRunner{repos: &testTxRepos{entries: entries, watermarks: watermarks}}
	return NewStoreTarget(entries, tx), entries, watermarks, tx
}

func TestStoreTarget_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("staged entry exists without store lookup", func(t *testing.T) {
		target, entries, _, _ := newStoreTarget()
		require.NoError(t, target.Add(ctx, newTestEntry("e-1", "rec-1")))

		exists, err := target.Exists(ctx, "rec-1")

		require.NoError(t, err)
		assert.True(t, exists)
		entries.AssertNotCalled(t, "ExistsBySourceRecordID", mock.Anything, mock.Anything)
	})

	t.Run("falls back to store", func(t *testing.T) {
		target, entries, _, _ := newStoreTarget()
		entries.On("ExistsBySourceRecordID", ctx, "rec-2").Return(true, nil)
		entries.On("ExistsBySourceRecordID", ctx, "rec-3").Return(false, nil)

		exists, err := target.Exists(ctx, "rec-2")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = target.Exists(ctx, "rec-3")
		require.NoError(t, err)
		assert.False(t, exists)
		entries.AssertExpectations(t)
	})

	t.Run("store error", func(t *testing.T) {
		target, entries, _, _ := newStoreTarget()
		entries.On("ExistsBySourceRecordID", ctx, "rec-4").Return(false, errors.New("connection refused"))

		_, err := target.Exists(ctx, "rec-4")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestStoreTarget_Add_RejectsInvalidEntry(t *testing.T) {
	target, _, _, _ := newStoreTarget()
	entry := newTestEntry("e-1", "rec-1")
	entry.MaterialID = ""

	err := target.Add(context.Background(), entry)

	require.Error(t, err)
	assert.Equal(t, 0, target.pending())
}

func TestStoreTarget_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("commits entries and watermarks in one transaction", func(t *testing.T) {
		target, entries, watermarks, tx := newStoreTarget()
		e1 := newTestEntry("e-1", "rec-1")
		e2 := newTestEntry("e-2", "rec-2")
		w := domain.NewWatermark("w-1", e1.Timestamp, 2, time.Now())

		require.NoError(t, target.Add(ctx, e1))
		require.NoError(t, target.Add(ctx, e2))
		require.NoError(t, target.RecordWatermark(ctx, w))

		entries.On("CreateBatch", ctx, []*domain.Entry{e1, e2}).Return(nil)
		watermarks.On("Create", ctx, w).Return(nil)

		require.NoError(t, target.Flush(ctx))

		assert.Equal(t, 1, tx.called)
		assert.Equal(t, 0, target.pending())
		entries.AssertExpectations(t)
		watermarks.AssertExpectations(t)

		// staged set is cleared, so existence now goes to the store
		entries.On("ExistsBySourceRecordID", ctx, "rec-1").Return(true, nil)
		exists, err := target.Exists(ctx, "rec-1")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("nothing staged is a no-op", func(t *testing.T) {
		target, _, _, tx := newStoreTarget()

		require.NoError(t, target.Flush(ctx))
		assert.Equal(t, 0, tx.called)
	})

	t.Run("failure keeps staged entries", func(t *testing.T) {
		target, entries, _, _ := newStoreTarget()
		e1 := newTestEntry("e-1", "rec-1")
		require.NoError(t, target.Add(ctx, e1))

		entries.On("CreateBatch", ctx, []*domain.Entry{e1}).Return(errors.New("deadlock")).Once()

		err := target.Flush(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to flush entries")
		assert.Equal(t, 1, target.pending())

		entries.On("CreateBatch", ctx, []*domain.Entry{e1}).Return(nil).Once()
		require.NoError(t, target.Flush(ctx))
		assert.Equal(t, 0, target.pending())
	})

	t.Run("watermark failure", func(t *testing.T) {
		target, entries, watermarks, _ := newStoreTarget()
		w := domain.NewWatermark("w-1", time.Now(), 0, time.Now())
		require.NoError(t, target.RecordWatermark(ctx, w))

		entries.On("CreateBatch", ctx, mock.Anything).Return(nil)
		watermarks.On("Create", ctx, w).Return(errors.New("constraint violation"))

		err := target.Flush(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record watermark")
	})
}

func TestStoreTarget_RecordWatermark_Validates(t *testing.T) {
	target, _, _, _ := newStoreTarget()

	err := target.RecordWatermark(context.Background(), &domain.Watermark{ID: "w-1", Date: time.Now(), EntriesAdded: -1})

	require.Error(t, err)
}

func TestKindFilter(t *testing.T) {
	target, _, _, _ := newStoreTarget()

	for _, k := range domain.AllOutcomeKinds {
		assert.True(t, target.AcceptsKind(k), "empty filter accepts %s", k)
	}

	target.SetAllowedKinds([]domain.OutcomeKind{domain.OutcomeHit, domain.OutcomeUndetermined})
	assert.True(t, target.AcceptsKind(domain.OutcomeHit))
	assert.False(t, target.AcceptsKind(domain.OutcomeNoHit))
	assert.True(t, target.AcceptsKind(domain.OutcomeUndetermined))

	target.SetAllowedKinds(nil)
	assert.True(t, target.AcceptsKind(domain.OutcomeNoHit))
}
