//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

func TestWatermarkRepository_LatestEmpty(t *testing.T) {
	ctx := context.Background()
	repo := NewWatermarkRepository(setupPool(ctx, t))

	_, err := repo.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrWatermarkNotFound)
}

func TestWatermarkRepository_LatestByDate(t *testing.T) {
	ctx := context.Background()
	repo := NewWatermarkRepository(setupPool(ctx, t))

	created := time.Now().UTC().Truncate(time.Microsecond)
	days := []time.Time{
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range days {
		require.NoError(t, repo.Create(ctx, domain.NewWatermark(uuid.NewString(), d, i*10, created)))
	}

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, days[1], latest.Date)
	assert.Equal(t, 10, latest.EntriesAdded)

	list, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, days[1], list[0].Date)
	assert.Equal(t, days[2], list[1].Date)
}

func TestWatermarkRepository_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewWatermarkRepository(setupPool(ctx, t))

	err := repo.Create(ctx, domain.NewWatermark(uuid.NewString(), time.Now(), -1, time.Now()))
	assert.Error(t, err)
}
