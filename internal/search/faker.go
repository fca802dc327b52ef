package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/fixtures"
)

// LogDocument is a cover lookup record as the logging pipeline indexes it.
type LogDocument struct {
	Message   string          `json:"message"`
	Context   json.RawMessage `json:"context"`
	Level     int             `json:"level"`
	LevelName string          `json:"level_name"`
	Channel   string          `json:"channel"`
	Datetime  string          `json:"datetime"`
}

// Faker seeds a daily index with the canonical fixture records.
type Faker struct {
	client *Client
	logger *zap.Logger
}

// NewFaker creates a Faker.
func NewFaker(client *Client, logger *zap.Logger) *Faker {
	return &Faker{client: client, logger: logger}
}

// Seed creates the index for day and indexes one document per fixture
// context, all stamped at day. It returns the number of documents indexed.
func (f *Faker) Seed(ctx context.Context, day time.Time) (int, error) {
	index := IndexName(day)

	status, raw, err := f.client.do(ctx, "create_index", http.MethodPut, index, nil, nil)
	if err != nil {
		return 0, err
	}
	// An existing index is reported as a 400 and is fine to append to.
	if status == http.StatusBadRequest && strings.Contains(string(raw), "resource_already_exists_exception") {
		f.logger.Info("index already exists", zap.String("index", index))
	} else if err := expect2xx("create_index", status, raw); err != nil {
		return 0, err
	}

	indexed := 0
	for _, c := range fixtures.Contexts() {
		doc := LogDocument{
			Message:   QueryText,
			Context:   c,
			Level:     200,
			LevelName: "INFO",
			Channel:   "statistics",
			Datetime:  day.Format("2006-01-02T15:04:05-0700"),
		}
		status, raw, err := f.client.do(ctx, "index", http.MethodPost, index+"/logs/", doc, nil)
		if err != nil {
			return indexed, err
		}
		if err := expect2xx("index", status, raw); err != nil {
			return indexed, fmt.Errorf("failed to index document %d: %w", indexed+1, err)
		}
		indexed++
	}

	f.logger.Info("seeded fake log records", zap.String("index", index), zap.Int("documents", indexed))
	return indexed, nil
}
