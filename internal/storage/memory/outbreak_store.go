// Package memory provides an in-memory outbreak store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
)

// OutbreakStore keeps records in memory. It implements outbreak.Store.
type OutbreakStore struct {
	mu      sync.RWMutex
	records []outbreak.Record
	byURL   map[string]int
	byID    map[string]int
}

// NewOutbreakStore constructs an empty OutbreakStore.
func NewOutbreakStore() *OutbreakStore {
	return &OutbreakStore{
		byURL: make(map[string]int),
		byID:  make(map[string]int),
	}
}

// FindByURL returns the record stored for url.
func (s *OutbreakStore) FindByURL(_ context.Context, url string) (outbreak.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byURL[url]
	if !ok {
		return outbreak.Record{}, outbreak.ErrNotFound
	}
	return s.records[idx], nil
}

// Latest returns the most recently dated record.
func (s *OutbreakStore) Latest(ctx context.Context) (outbreak.Record, error) {
	recs, err := s.List(ctx, 1, 0)
	if err != nil {
		return outbreak.Record{}, err
	}
	if len(recs) == 0 {
		return outbreak.Record{}, outbreak.ErrNotFound
	}
	return recs[0], nil
}

// InsertBatch validates the whole batch before applying any of it.
func (s *OutbreakStore) InsertBatch(_ context.Context, records []outbreak.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenURL := make(map[string]struct{}, len(records))
	seenID := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" || r.URL == "" {
			return fmt.Errorf("insert outbreak: id and url are required")
		}
		if _, ok := s.byURL[r.URL]; ok {
			return fmt.Errorf("insert outbreak %s: %w", r.URL, outbreak.ErrDuplicateURL)
		}
		if _, ok := seenURL[r.URL]; ok {
			return fmt.Errorf("insert outbreak %s: %w", r.URL, outbreak.ErrDuplicateURL)
		}
		if _, ok := s.byID[r.ID]; ok {
			return fmt.Errorf("insert outbreak: duplicate id %s", r.ID)
		}
		if _, ok := seenID[r.ID]; ok {
			return fmt.Errorf("insert outbreak: duplicate id %s", r.ID)
		}
		seenURL[r.URL] = struct{}{}
		seenID[r.ID] = struct{}{}
	}

	for _, r := range records {
		s.records = append(s.records, r)
		s.byURL[r.URL] = len(s.records) - 1
		s.byID[r.ID] = len(s.records) - 1
	}
	return nil
}

// List returns records newest first; undated records sort last.
func (s *OutbreakStore) List(_ context.Context, limit, offset int) ([]outbreak.Record, error) {
	s.mu.RLock()
	out := make([]outbreak.Record, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		di, okI := out[i].EffectiveDate()
		dj, okJ := out[j].EffectiveDate()
		switch {
		case okI && !okJ:
			return true
		case !okI && okJ:
			return false
		case okI && okJ && !di.Equal(dj):
			return di.After(dj)
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []outbreak.Record{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the record with the given ID.
func (s *OutbreakStore) Get(_ context.Context, id string) (outbreak.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return outbreak.Record{}, outbreak.ErrNotFound
	}
	return s.records[idx], nil
}

// Ping always succeeds.
func (s *OutbreakStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *OutbreakStore) Close() {}

// Len reports how many records are stored.
func (s *OutbreakStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
