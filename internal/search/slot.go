package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

const (
	// SlotKey is the fixed key the scroll token is cached under.
	SlotKey = "ScrollId_cache"

	// ScrollTTL is how long the search engine keeps a scroll context alive
	// between calls, and how long a cached token is trusted.
	ScrollTTL = 60 * time.Second
)

// Slot is the single scroll token cache of an extraction run. The
// orchestrator acquires it for the duration of a run and hands it to the
// cursor on every call; a second run cannot acquire it until it is released.
type Slot interface {
	// Acquire takes exclusive ownership or fails with domain.ErrScrollSlotBusy.
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error

	// Token returns the cached scroll token, if one is present and unexpired.
	Token(ctx context.Context) (string, bool, error)
	Store(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemorySlot is a process local Slot.
type MemorySlot struct {
	held atomic.Bool

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemorySlot creates an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{now: time.Now}
}

func (s *MemorySlot) Acquire(_ context.Context) error {
	if !s.held.CompareAndSwap(false, true) {
		return domain.ErrScrollSlotBusy
	}
	return nil
}

func (s *MemorySlot) Release(_ context.Context) error {
	s.held.Store(false)
	return nil
}

func (s *MemorySlot) Token(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", false, nil
	}
	return s.token, true, nil
}

func (s *MemorySlot) Store(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.expiresAt = s.now().Add(ScrollTTL)
	return nil
}

func (s *MemorySlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
