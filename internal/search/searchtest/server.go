// Package searchtest provides an in-process fake of the search engine's
// index, document and scroll endpoints.
package searchtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Request is one request received by the fake.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type document struct {
	ID     string
	Source json.RawMessage
}

type scroll struct {
	index  string
	offset int
	size   int
}

// Server is a fake search engine. It is safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	indices  map[string][]document
	scrolls  map[string]*scroll
	nextID   int
	requests []Request
	failures map[string]int
}

// NewServer starts a fake search engine. It is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		indices:  make(map[string][]document),
		scrolls:  make(map[string]*scroll),
		failures: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Post("/_search/scroll", s.handleScroll)
	r.Delete("/_search/scroll", s.handleClearScroll)
	r.Head("/{index}", s.handleHead)
	r.Put("/{index}", s.handleCreateIndex)
	r.Post("/{index}/logs/", s.handleIndexDocument)
	r.Post("/{index}/_search", s.handleSearch)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the server URL with a trailing slash.
func (s *Server) BaseURL() string {
	return s.Server.URL + "/"
}

// CreateIndex creates an empty index.
func (s *Server) CreateIndex(index string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[index]; !ok {
		s.indices[index] = []document{}
	}
}

// AddDocument appends a document with an explicit id, creating the index
// if needed. Ids are not required to be unique.
func (s *Server) AddDocument(index, id string, source interface{}) {
	data, err := json.Marshal(source)
	if err != nil {
		panic(fmt.Sprintf("searchtest: marshal source: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[index] = append(s.indices[index], document{ID: id, Source: data})
}

// Documents returns the sources stored in index.
func (s *Server) Documents(index string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, 0, len(s.indices[index]))
	for _, d := range s.indices[index] {
		out = append(out, d.Source)
	}
	return out
}

// FailNext makes the next n requests to the given route fail with a 503.
// route is one of "head", "search", "scroll", "clear_scroll".
func (s *Server) FailNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = n
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts requests with the given method and path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// OpenScrolls returns the number of scroll contexts not yet cleared.
func (s *Server) OpenScrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scrolls)
}

// ExpireScrolls drops every scroll context, as the engine does on TTL expiry.
func (s *Server) ExpireScrolls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = make(map[string]*scroll)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) shouldFail(route string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[route] > 0 {
		s.failures[route]--
		return true
	}
	return false
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("head") {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.mu.Lock()
	_, ok := s.indices[chi.URLParam(r, "index")]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	s.mu.Lock()
	_, exists := s.indices[index]
	if !exists {
		s.indices[index] = []document{}
	}
	s.mu.Unlock()

	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  map[string]string{"type": "resource_already_exists_exception"},
			"status": http.StatusBadRequest,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true, "index": index})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	body, _ := io.ReadAll(r.Body)
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("doc-%d", s.nextID)
	s.indices[index] = append(s.indices[index], document{ID: id, Source: body})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"_id": id, "result": "created"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("search") {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	index := chi.URLParam(r, "index")

	var req struct {
		Size int `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Size <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid search body"})
		return
	}

	s.mu.Lock()
	if _, ok := s.indices[index]; !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "index_not_found_exception"})
		return
	}
	sc := &scroll{index: index, size: req.Size}
	s.mu.Unlock()

	s.writePage(w, sc)
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("scroll") {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	var req struct {
		Scroll   string `json:"scroll"`
		ScrollID string `json:"scroll_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid scroll body"})
		return
	}

	s.mu.Lock()
	sc, ok := s.scrolls[req.ScrollID]
	if ok {
		delete(s.scrolls, req.ScrollID)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "search_context_missing_exception"})
		return
	}
	s.writePage(w, sc)
}

func (s *Server) handleClearScroll(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("clear_scroll") {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	var req struct {
		ScrollID string `json:"scroll_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	_, ok := s.scrolls[req.ScrollID]
	delete(s.scrolls, req.ScrollID)
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"succeeded": true, "num_freed": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"succeeded": true, "num_freed": 1})
}

// writePage returns the next page of sc and registers a rotated scroll id
// for the remainder.
func (s *Server) writePage(w http.ResponseWriter, sc *scroll) {
	s.mu.Lock()
	docs := s.indices[sc.index]
	end := sc.offset + sc.size
	if end > len(docs) {
		end = len(docs)
	}
	hits := make([]map[string]interface{}, 0, end-sc.offset)
	for _, d := range docs[sc.offset:end] {
		hits = append(hits, map[string]interface{}{
			"_index":  sc.index,
			"_id":     d.ID,
			"_source": d.Source,
		})
	}
	sc.offset = end
	s.nextID++
	scrollID := fmt.Sprintf("scroll-%d", s.nextID)
	s.scrolls[scrollID] = sc
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"_scroll_id": scrollID,
		"hits": map[string]interface{}{
			"total": map[string]int{"value": len(docs)},
			"hits":  hits,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
