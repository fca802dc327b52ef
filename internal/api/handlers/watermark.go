package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/coverstats/internal/api"
	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/pagination"
)

type WatermarkStore interface {
	List(ctx context.Context, limit int) ([]*domain.Watermark, error)
}

// WatermarkHandler lists completed extraction days, newest first.
type WatermarkHandler struct {
	store WatermarkStore
}

func NewWatermarkHandler(store WatermarkStore) *WatermarkHandler {
	return &WatermarkHandler{store: store}
}

type WatermarkResponse struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	EntriesAdded int    `json:"entriesAdded"`
	CreatedAt    string `json:"createdAt"`
}

func (h *WatermarkHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := pagination.Limit(r.URL.Query().Get("limit"), 30, maxEntryLimit)

	watermarks, err := h.store.List(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]WatermarkResponse, len(watermarks))
	for i, wm := range watermarks {
		responses[i] = WatermarkResponse{
			ID:           wm.ID,
			Date:         wm.Date.Format("2006-01-02"),
			EntriesAdded: wm.EntriesAdded,
			CreatedAt:    wm.CreatedAt.Format(time.RFC3339),
		}
	}
	api.Success(w, http.StatusOK, responses)
}
