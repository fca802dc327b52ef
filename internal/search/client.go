// Package search talks to the log index: scroll pagination over a day's
// cover lookup records and seeding of fake records.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/coverstats/internal/metrics"
)

// TransportError is returned when the search engine cannot be reached or
// answers with an unexpected status.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("search %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client is a thin JSON client for the search engine's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient creates a Client. A zero timeout means requests never time out.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// do sends one request. The response body is decoded into out when out is
// non-nil and the status is 2xx. The status code is returned for all
// responses; only failures to get a response are errors here.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordSearchRequest(op, "error")
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordSearchRequest(op, strconv.Itoa(resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, respBody, &TransportError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("failed to parse response: %w", err),
			}
		}
	}

	return resp.StatusCode, respBody, nil
}

// expect2xx turns a non-2xx status into a TransportError.
func expect2xx(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return &TransportError{Op: op, StatusCode: status, Message: strings.TrimSpace(string(body))}
}
