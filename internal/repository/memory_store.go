package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
)

// MemoryPriceStore keeps prices per series in memory, ordered by date.
type MemoryPriceStore struct {
	mu     sync.RWMutex
	series map[string][]models.PricePoint
}

var _ domrepo.PriceStore = (*MemoryPriceStore)(nil)

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{series: make(map[string][]models.PricePoint)}
}

func (s *MemoryPriceStore) GetPrices(_ context.Context, series string, from, to time.Time) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.series[series]
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(all), func(i int) bool { return !all[i].Date.Before(from) })
	}
	hi := len(all)
	if !to.IsZero() {
		hi = sort.Search(len(all), func(i int) bool { return all[i].Date.After(to) })
	}
	if lo >= hi {
		return []models.PricePoint{}, nil
	}
	out := make([]models.PricePoint, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

// StorePrices upserts points by date.
func (s *MemoryPriceStore) StorePrices(_ context.Context, series string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := make(map[time.Time]float64, len(s.series[series])+len(points))
	for _, p := range s.series[series] {
		byDay[p.Date] = p.Price
	}
	for _, p := range points {
		byDay[p.Date] = p.Price
	}
	merged := make([]models.PricePoint, 0, len(byDay))
	for d, p := range byDay {
		merged = append(merged, models.PricePoint{Date: d, Price: p})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	s.series[series] = merged
	return nil
}

func (s *MemoryPriceStore) CountPrices(_ context.Context, series string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[series]), nil
}

// MemoryEventStore holds the event catalog.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []models.EventRecord
}

var _ domrepo.EventStore = (*MemoryEventStore)(nil)

func NewMemoryEventStore(events []models.EventRecord) *MemoryEventStore {
	s := &MemoryEventStore{}
	_ = s.StoreEvents(context.Background(), events)
	return s
}

func (s *MemoryEventStore) ListEvents(_ context.Context, from, to time.Time) ([]models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EventRecord, 0, len(s.events))
	for _, e := range s.events {
		if (!from.IsZero() && e.Date.Before(from)) || (!to.IsZero() && e.Date.After(to)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryEventStore) StoreEvents(_ context.Context, events []models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].Date.Before(s.events[j].Date) })
	return nil
}

// MemoryResultStore keeps analyses for the lifetime of the process.
type MemoryResultStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.AnalysisResult
	latest map[string]string
}

var _ domrepo.ResultStore = (*MemoryResultStore)(nil)

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		byID:   make(map[string]*models.AnalysisResult),
		latest: make(map[string]string),
	}
}

// SaveResult stores a copy of r. Only completed analyses become the latest of their series.
func (s *MemoryResultStore) SaveResult(_ context.Context, r *models.AnalysisResult) error {
	cp := *r
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = &cp
	if r.Status == models.AnalysisCompleted {
		if cur, ok := s.byID[s.latest[r.Series]]; !ok || !cur.CreatedAt.After(r.CreatedAt) {
			s.latest[r.Series] = r.ID
		}
	}
	return nil
}

func (s *MemoryResultStore) GetResult(_ context.Context, id string) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryResultStore) LatestResult(ctx context.Context, series string) (*models.AnalysisResult, error) {
	s.mu.RLock()
	id, ok := s.latest[series]
	s.mu.RUnlock()
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return s.GetResult(ctx, id)
}
