package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/pagination"
)

const entryColumns = `id, source_record_id, date, client_id, agency, event, identifier_type,
	material_id, response, image_id, extracted, extraction_date`

// EntryFilter narrows an entry listing. Nil fields do not filter.
type EntryFilter struct {
	DateAfter  *time.Time
	DateBefore *time.Time
	Extracted  *bool
}

type EntryRepository struct {
	db dbtx
}

func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{db: pool}
}

func NewEntryRepositoryWithTx(tx pgx.Tx) *EntryRepository {
	return &EntryRepository{db: tx}
}

func (r *EntryRepository) ExistsBySourceRecordID(ctx context.Context, sourceRecordID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE source_record_id = $1)`,
		sourceRecordID,
	).Scan(&exists)
	return exists, err
}

func (r *EntryRepository) Create(ctx context.Context, e *domain.Entry) error {
	if err := domain.ValidateEntry(e); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, insertEntrySQL, entryArgs(e)...)
	return err
}

// CreateBatch inserts entries in a single round trip.
func (r *EntryRepository) CreateBatch(ctx context.Context, entries []*domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if err := domain.ValidateEntry(e); err != nil {
			return err
		}
		batch.Queue(insertEntrySQL, entryArgs(e)...)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to insert entry %s: %w", entries[i].ID, err)
		}
	}
	return results.Close()
}

func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrEntryNotFound
	}

	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns entries matching filter in (date, id) order, starting after cursor.
func (r *EntryRepository) List(ctx context.Context, filter EntryFilter, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Entry], error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DateAfter != nil {
		conds = append(conds, "date >= "+arg(*filter.DateAfter))
	}
	if filter.DateBefore != nil {
		conds = append(conds, "date <= "+arg(*filter.DateBefore))
	}
	if filter.Extracted != nil {
		conds = append(conds, "extracted = "+arg(*filter.Extracted))
	}
	if cursor != nil {
		conds = append(conds, fmt.Sprintf("(date, id) > (%s::timestamptz, %s::uuid)", arg(cursor.Timestamp), arg(cursor.ID)))
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, id ASC LIMIT " + arg(limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	var nextCursor string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.Timestamp)
	}

	return &pagination.PageResult[*domain.Entry]{
		Items:   entries,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

// MarkDelivered flags entries as delivered at the given time.
func (r *EntryRepository) MarkDelivered(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE entries SET extracted = TRUE, extraction_date = $1 WHERE id = ANY($2::uuid[])`,
		at, ids,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// ListDelivered returns up to limit delivered entries with an id greater than afterID.
func (r *EntryRepository) ListDelivered(ctx context.Context, afterID string, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	if afterID == "" {
		afterID = uuid.Nil.String()
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE extracted AND id > $1
		 ORDER BY id ASC
		 LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *EntryRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM entries WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

const insertEntrySQL = `INSERT INTO entries (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func entryArgs(e *domain.Entry) []interface{} {
	response := e.ResponsePayload
	if len(response) == 0 {
		response = json.RawMessage("{}")
	}
	return []interface{}{
		e.ID, e.SourceRecordID, e.Timestamp, e.ClientID, e.AgencyID, e.EventKind, e.IdentifierType,
		e.MaterialID, []byte(response), e.MatchedResourceID, e.Delivered, e.DeliveredAt,
	}
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var (
		e        domain.Entry
		response []byte
		imageID  pgtype.Text
	)
	if err := row.Scan(&e.ID, &e.SourceRecordID, &e.Timestamp, &e.ClientID, &e.AgencyID, &e.EventKind,
		&e.IdentifierType, &e.MaterialID, &response, &imageID, &e.Delivered, &e.DeliveredAt); err != nil {
		return nil, err
	}
	e.ResponsePayload = response
	if imageID.Valid {
		id := imageID.String
		e.MatchedResourceID = &id
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
