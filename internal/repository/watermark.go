package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

type WatermarkRepository struct {
	db dbtx
}

func NewWatermarkRepository(pool *pgxpool.Pool) *WatermarkRepository {
	return &WatermarkRepository{db: pool}
}

func NewWatermarkRepositoryWithTx(tx pgx.Tx) *WatermarkRepository {
	return &WatermarkRepository{db: tx}
}

func (r *WatermarkRepository) Create(ctx context.Context, w *domain.Watermark) error {
	if err := domain.ValidateWatermark(w); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO extraction_watermarks (id, date, entries_added, created_at)
		 VALUES ($1, $2, $3, $4)`,
		w.ID, w.Date, w.EntriesAdded, w.CreatedAt,
	)
	return err
}

// Latest returns the watermark with the most recent date.
func (r *WatermarkRepository) Latest(ctx context.Context) (*domain.Watermark, error) {
	var w domain.Watermark
	err := r.db.QueryRow(ctx,
		`SELECT id, date, entries_added, created_at
		 FROM extraction_watermarks
		 ORDER BY date DESC, created_at DESC
		 LIMIT 1`,
	).Scan(&w.ID, &w.Date, &w.EntriesAdded, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWatermarkNotFound
		}
		return nil, err
	}
	w.Date = domain.Day(w.Date)
	return &w, nil
}

// List returns the most recent watermarks, newest first.
func (r *WatermarkRepository) List(ctx context.Context, limit int) ([]*domain.Watermark, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, date, entries_added, created_at
		 FROM extraction_watermarks
		 ORDER BY date DESC, created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watermarks []*domain.Watermark
	for rows.Next() {
		var w domain.Watermark
		if err := rows.Scan(&w.ID, &w.Date, &w.EntriesAdded, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.Date = domain.Day(w.Date)
		watermarks = append(watermarks, &w)
	}
	return watermarks, rows.Err()
}
