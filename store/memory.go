package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the time series in memory, used when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append keeps the first row for a timestamp, as the readings table does.
func (s *MemoryStore) Append(_ context.Context, r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.firstIndex(r.Timestamp)
	if i < len(s.rows) && s.rows[i].Timestamp.Equal(r.Timestamp) {
		return nil
	}
	s.rows = append(s.rows, Row{})
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = r
	return nil
}

func (s *MemoryStore) firstIndex(t time.Time) int {
	return sort.Search(len(s.rows), func(i int) bool { return !s.rows[i].Timestamp.Before(t) })
}

func (s *MemoryStore) Since(_ context.Context, from time.Time) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.firstIndex(from)
	out := make([]Row, len(s.rows)-i)
	copy(out, s.rows[i:])
	return out, nil
}

func (s *MemoryStore) FirstAtOrAfter(_ context.Context, t time.Time) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.firstIndex(t)
	if i == len(s.rows) {
		return Row{}, ErrNoData
	}
	return s.rows[i], nil
}

func (s *MemoryStore) AdjustRainCounter(_ context.Context, from time.Time, offset float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.firstIndex(from); i < len(s.rows); i++ {
		s.rows[i].RainCounter += offset
	}
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.firstIndex(before)
	s.rows = append([]Row(nil), s.rows[i:]...)
	return int64(i), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error {
	return nil
}
