// SPDX-License-Identifier: MIT

// Package state persists resumable crawl progress. A run's frontier, cursor
// and counters are snapshotted at milestones and on abort so an interrupted
// archive can pick up where it stopped.
package state

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a run.
var ErrNotFound = errors.New("state: snapshot not found")

// CrawlState is one resumable snapshot of a run. Queue holds page URLs in
// discovery order; entries before Cursor are done, the rest are the frontier.
type CrawlState struct {
	RunID      string    `json:"run_id"`
	WebsiteID  int64     `json:"website_id"`
	BaseURL    string    `json:"base_url"`
	Queue      []string  `json:"queue"`
	Cursor     int       `json:"cursor"`
	SeenAssets []string  `json:"seen_assets,omitempty"`
	Pages      int64     `json:"pages"`
	Assets     int64     `json:"assets"`
	Failures   int64     `json:"failures"`
	Reason     string    `json:"reason,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// Frontier returns the not-yet-crawled remainder of the queue.
func (s *CrawlState) Frontier() []string {
	if s.Cursor >= len(s.Queue) {
		return nil
	}
	return s.Queue[s.Cursor:]
}

func (s *CrawlState) clone() *CrawlState {
	out := *s
	out.Queue = append([]string(nil), s.Queue...)
	out.SeenAssets = append([]string(nil), s.SeenAssets...)
	return &out
}

// Store persists crawl snapshots keyed by run ID.
type Store interface {
	Save(ctx context.Context, st *CrawlState) error
	Load(ctx context.Context, runID string) (*CrawlState, error)
	Delete(ctx context.Context, runID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore keeps snapshots in process memory. Resume across restarts
// needs the badger backend.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*CrawlState
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*CrawlState)}
}

func (m *MemoryStore) Save(_ context.Context, st *CrawlState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[st.RunID] = st.clone()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, runID string) (*CrawlState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.snaps[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, runID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.snaps))
	for id := range m.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
