package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/metrics"
	"github.com/cloo-solutions/coverstats/internal/telemetry"
)

const (
	// PageSize is the number of hits requested per page.
	PageSize = 100

	// QueryText is the log message of cover lookup records.
	QueryText = "Cover request/response"
)

// IndexName returns the name of the daily log index for day.
func IndexName(day time.Time) string {
	return "stats_" + day.Format(domain.DayFormat)
}

// Page is one page of a day's scroll.
type Page struct {
	Records []domain.RawLogRecord

	// Skipped counts hits on this page whose context could not be decoded.
	Skipped int
}

// Exhausted reports whether the search engine returned no hits at all,
// which ends the day.
func (p Page) Exhausted() bool {
	return len(p.Records) == 0 && p.Skipped == 0
}

type searchHit struct {
	ID     string `json:"_id"`
	Source struct {
		Datetime string          `json:"datetime"`
		Context  json.RawMessage `json:"context"`
	} `json:"_source"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// Cursor paginates a day's log records with the scroll API. The scroll
// token lives in the Slot passed to each call; the cursor only remembers
// which index it has already confirmed to exist.
type Cursor struct {
	client *Client
	logger *zap.Logger

	mu     sync.Mutex
	probed string
}

// NewCursor creates a Cursor.
func NewCursor(client *Client, logger *zap.Logger) *Cursor {
	return &Cursor{client: client, logger: logger}
}

// FetchPage returns the next page of records for day matching query. A
// day without an index yields an exhausted page, not an error.
func (c *Cursor) FetchPage(ctx context.Context, slot Slot, day time.Time, query string) (Page, error) {
	index := IndexName(day)

	c.mu.Lock()
	probed := c.probed == index
	c.mu.Unlock()

	if !probed {
		exists, err := c.indexExists(ctx, index)
		if err != nil {
			return Page{}, err
		}
		if !exists {
			return Page{}, nil
		}
		c.mu.Lock()
		c.probed = index
		c.mu.Unlock()
	}

	token, ok, err := slot.Token(ctx)
	if err != nil {
		return Page{}, err
	}

	var (
		resp   searchResponse
		op     string
		path   string
		body   interface{}
		ttl    = fmt.Sprintf("%ds", int(ScrollTTL.Seconds()))
		status int
		raw    []byte
	)
	if !ok {
		op = "search"
		path = index + "/_search?scroll=" + ttl
		body = map[string]interface{}{
			"size":  PageSize,
			"query": map[string]interface{}{"match": map[string]string{"message": query}},
			"sort":  []string{"_doc"},
		}
	} else {
		op = "scroll"
		path = "_search/scroll"
		body = map[string]string{"scroll": ttl, "scroll_id": token}
	}

	status, raw, err = c.client.do(ctx, op, http.MethodPost, path, body, &resp)
	if err != nil {
		return Page{}, err
	}
	if err := expect2xx(op, status, raw); err != nil {
		return Page{}, err
	}

	// The token may rotate on every call.
	if resp.ScrollID != "" {
		if err := slot.Store(ctx, resp.ScrollID); err != nil {
			return Page{}, err
		}
	}

	page := Page{Records: make([]domain.RawLogRecord, 0, len(resp.Hits.Hits))}
	for _, h := range resp.Hits.Hits {
		var rc domain.RawContext
		if err := json.Unmarshal(h.Source.Context, &rc); err != nil {
			c.logger.Warn("skipping malformed log record",
				zap.String("index", index), zap.String("record_id", h.ID), zap.Error(err))
			c.client.metrics.RecordSkipped(metrics.SkipReasonMalformed)
			telemetry.CaptureError(ctx, fmt.Errorf("record %s in %s: %w", h.ID, index, err))
			page.Skipped++
			continue
		}
		page.Records = append(page.Records, domain.RawLogRecord{
			RecordID:  h.ID,
			Timestamp: h.Source.Datetime,
			Context:   rc,
		})
	}
	return page, nil
}

// Reset releases the remote scroll context and clears the slot. Release
// failures are logged and ignored since the context may already have
// expired on the server.
func (c *Cursor) Reset(ctx context.Context, slot Slot) error {
	c.mu.Lock()
	c.probed = ""
	c.mu.Unlock()

	token, ok, err := slot.Token(ctx)
	if err != nil {
		c.logger.Warn("failed to read scroll token on reset", zap.Error(err))
	}
	if ok {
		status, raw, err := c.client.do(ctx, "clear_scroll", http.MethodDelete, "_search/scroll",
			map[string]string{"scroll_id": token}, nil)
		if err == nil {
			err = expect2xx("clear_scroll", status, raw)
		}
		if err != nil {
			c.logger.Warn("failed to release scroll context", zap.Error(err))
		}
	}

	return slot.Clear(ctx)
}

func (c *Cursor) indexExists(ctx context.Context, index string) (bool, error) {
	status, raw, err := c.client.do(ctx, "head", http.MethodHead, index, nil, nil)
	if err != nil {
		return false, err
	}
	if status >= 500 {
		return false, expect2xx("head", status, raw)
	}
	return status == http.StatusOK, nil
}
