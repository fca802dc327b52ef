package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/api"
	"github.com/cloo-solutions/coverstats/internal/api/middleware"
	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/pagination"
	"github.com/cloo-solutions/coverstats/internal/repository"
)

const (
	defaultEntryLimit = 100
	maxEntryLimit     = 1000

	markDeliveredTimeout = 30 * time.Second
)

// dateLayouts are accepted by the date[after] and date[before] filters.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02", domain.DayFormat}

type EntryStore interface {
	List(ctx context.Context, filter repository.EntryFilter, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Entry], error)
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	MarkDelivered(ctx context.Context, ids []string, at time.Time) (int64, error)
}

// EntryHandler serves entries. Every entry returned by a successful
// collection read is marked delivered once the response is written.
type EntryHandler struct {
	store  EntryStore
	logger *zap.Logger
	now    func() time.Time

	pending sync.WaitGroup
}

func NewEntryHandler(store EntryStore, logger *zap.Logger) *EntryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryHandler{store: store, logger: logger, now: time.Now}
}

type EntryResponse struct {
	ID             string          `json:"id"`
	ElasticID      string          `json:"elasticId"`
	Date           string          `json:"date"`
	ClientID       string          `json:"clientId"`
	Agency         string          `json:"agency"`
	Event          string          `json:"event"`
	IdentifierType string          `json:"identifierType"`
	MaterialID     string          `json:"materialId"`
	Response       json.RawMessage `json:"response"`
	ImageID        *string         `json:"imageId"`
	Extracted      bool            `json:"extracted"`
	ExtractionDate *string         `json:"extractionDate"`
}

type EntryListResponse struct {
	Items   []*EntryResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func entryToResponse(e *domain.Entry) *EntryResponse {
	resp := &EntryResponse{
		ID:             e.ID,
		ElasticID:      e.SourceRecordID,
		Date:           e.Timestamp.Format(time.RFC3339),
		ClientID:       e.ClientID,
		Agency:         e.AgencyID,
		Event:          e.EventKind,
		IdentifierType: e.IdentifierType,
		MaterialID:     e.MaterialID,
		Response:       e.ResponsePayload,
		ImageID:        e.MatchedResourceID,
		Extracted:      e.Delivered,
	}
	if len(resp.Response) == 0 {
		resp.Response = json.RawMessage("{}")
	}
	if e.DeliveredAt != nil {
		at := e.DeliveredAt.Format(time.RFC3339)
		resp.ExtractionDate = &at
	}
	return resp
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter repository.EntryFilter
	for param, dst := range map[string]**time.Time{
		"date[after]":  &filter.DateAfter,
		"date[before]": &filter.DateBefore,
	} {
		raw := query.Get(param)
		if raw == "" {
			continue
		}
		t, ok := parseFilterDate(raw)
		if !ok {
			api.Error(w, http.StatusBadRequest, "invalid "+param+" value")
			return
		}
		*dst = &t
	}

	if raw := query.Get("extracted"); raw != "" {
		extracted, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid extracted value")
			return
		}
		filter.Extracted = &extracted
	}

	cursor, err := pagination.DecodeCursor(query.Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	limit := pagination.Limit(query.Get("limit"), defaultEntryLimit, maxEntryLimit)

	page, err := h.store.List(r.Context(), filter, cursor, limit)
	if err != nil {
		h.logger.Error("failed to list entries",
			zap.String("request_id", middleware.GetRequestID(r.Context())), zap.Error(err))
		api.HandleError(w, err)
		return
	}

	responses := make([]*EntryResponse, len(page.Items))
	ids := make([]string, len(page.Items))
	for i, e := range page.Items {
		responses[i] = entryToResponse(e)
		ids[i] = e.ID
	}

	api.Success(w, http.StatusOK, EntryListResponse{
		Items:   responses,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})

	h.markDelivered(r.Context(), ids)
}

// markDelivered flags ids in the background so the client does not wait
// on the update.
func (h *EntryHandler) markDelivered(reqCtx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	requestID := middleware.GetRequestID(reqCtx)
	ctx := context.WithoutCancel(reqCtx)
	at := h.now()

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, markDeliveredTimeout)
		defer cancel()

		n, err := h.store.MarkDelivered(ctx, ids, at)
		if err != nil {
			h.logger.Error("failed to mark entries delivered",
				zap.String("request_id", requestID), zap.Int("entries", len(ids)), zap.Error(err))
			return
		}
		h.logger.Debug("entries marked delivered",
			zap.String("request_id", requestID), zap.Int64("entries", n))
	}()
}

// Wait blocks until background delivery updates have finished.
func (h *EntryHandler) Wait() {
	h.pending.Wait()
}

func parseFilterDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
