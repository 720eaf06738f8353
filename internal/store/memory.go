package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/oakbridge-games/homestead/internal/game"
)

const completedCacheSize = 256

// MemoryStore is the in-process SessionStore. Sessions are kept as JSON
// blobs so reads hand out independent copies, matching the semantics of
// the database-backed store. Completed sessions are evicted into a
// bounded LRU archive so finished games stay readable without growing the
// hot map forever.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string][]byte
	versions  map[string]int64
	completed *lru.Cache
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	cache, _ := lru.New(completedCacheSize)
	return &MemoryStore{
		sessions:  make(map[string][]byte),
		versions:  make(map[string]int64),
		completed: cache,
	}
}

func (m *MemoryStore) Get(_ context.Context, code string) (*game.Session, error) {
	m.mu.RLock()
	blob, ok := m.sessions[code]
	version := m.versions[code]
	m.mu.RUnlock()

	if !ok {
		if archived, hit := m.completed.Get(code); hit {
			blob = archived.([]byte)
		} else {
			return nil, ErrNotFound
		}
	}

	var s game.Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", code, err)
	}
	if ok {
		s.Version = version
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *game.Session) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.Code, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Code] = blob
	m.versions[s.Code] = s.Version
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.Code]; !ok {
		return ErrNotFound
	}
	if m.versions[s.Code] != s.Version {
		return ErrConflict
	}

	s.Version++
	blob, err := json.Marshal(s)
	if err != nil {
		s.Version--
		return fmt.Errorf("encode session %s: %w", s.Code, err)
	}

	if s.Status == game.StatusCompleted {
		m.completed.Add(s.Code, blob)
		delete(m.sessions, s.Code)
		delete(m.versions, s.Code)
		return nil
	}
	m.sessions[s.Code] = blob
	m.versions[s.Code] = s.Version
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, code)
	delete(m.versions, code)
	m.completed.Remove(code)
	return nil
}

func (m *MemoryStore) ListInProgress(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := make([]string, 0, len(m.sessions))
	for code, blob := range m.sessions {
		var probe struct {
			Status game.Status `json:"status"`
		}
		if err := json.Unmarshal(blob, &probe); err != nil {
			continue
		}
		if probe.Status == game.StatusInProgress {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// MemoryHistory is a bounded per-(session, resource) ring of price
// records, capped to keep the momentum lookback cheap and memory flat.
type MemoryHistory struct {
	mu   sync.RWMutex
	cap  int
	data map[string][]game.PriceRecord
}

// NewMemoryHistory creates a ring-buffer history with the given per-series
// capacity.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryHistory{
		cap:  capacity,
		data: make(map[string][]game.PriceRecord),
	}
}

func historyKey(code string, res game.Resource) string {
	return code + "/" + string(res)
}

func (h *MemoryHistory) Append(_ context.Context, code string, res game.Resource, rec game.PriceRecord) error {
	key := historyKey(code, res)
	h.mu.Lock()
	defer h.mu.Unlock()
	series := append(h.data[key], rec)
	if len(series) > h.cap {
		series = series[len(series)-h.cap:]
	}
	h.data[key] = series
	return nil
}

func (h *MemoryHistory) Window(_ context.Context, code string, res game.Resource, since time.Time) ([]game.PriceRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	series := h.data[historyKey(code, res)]
	out := make([]game.PriceRecord, 0, len(series))
	for _, rec := range series {
		if rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (h *MemoryHistory) LastPrice(_ context.Context, code string, res game.Resource) (game.PriceRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	series := h.data[historyKey(code, res)]
	if len(series) == 0 {
		return game.PriceRecord{}, false
	}
	return series[len(series)-1], true
}
