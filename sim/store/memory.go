package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/worldsim/worldsim/sim"
)

// companyLog is the in-memory state of one company.
type companyLog struct {
	company   Company
	sales     []sim.SalesRecord
	marketing []sim.MarketingRecord
	inventory []sim.InventoryRecord
	lastDay   time.Time
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and for one-shot CLI runs. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	companies map[string]*companyLog
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: make(map[string]*companyLog),
	}
}

func (s *MemoryStore) CreateCompany(_ context.Context, c *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, c.ID)
	}
	// Store a copy to avoid external mutation.
	cp := *c
	cp.Config = c.Config.Clone()
	s.companies[c.ID] = &companyLog{company: cp}
	return nil
}

func (s *MemoryStore) GetCompany(_ context.Context, id string) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := l.company
	cp.Config = l.company.Config.Clone()
	return &cp, nil
}

func (s *MemoryStore) ListCompanies(_ context.Context) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Company, 0, len(s.companies))
	for _, l := range s.companies {
		cp := l.company
		cp.Config = l.company.Config.Clone()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateConfig(_ context.Context, id string, cfg *sim.WorldConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.companies[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	l.company.Config = cfg.Clone()
	l.company.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendDay(_ context.Context, id string, day *sim.DayResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.companies[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !l.lastDay.IsZero() && !day.Date.After(l.lastDay) {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder, sim.FormatDate(day.Date), sim.FormatDate(l.lastDay))
	}
	l.sales = append(l.sales, cloneSales(day.Sales)...)
	l.marketing = append(l.marketing, day.Marketing...)
	l.inventory = append(l.inventory, day.Inventory...)
	l.lastDay = day.Date
	return nil
}

func (s *MemoryStore) Sales(_ context.Context, id string) ([]sim.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneSales(l.sales), nil
}

func (s *MemoryStore) Marketing(_ context.Context, id string) ([]sim.MarketingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]sim.MarketingRecord(nil), l.marketing...), nil
}

func (s *MemoryStore) Inventory(_ context.Context, id string) ([]sim.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]sim.InventoryRecord(nil), l.inventory...), nil
}

func (s *MemoryStore) LatestInventory(_ context.Context, id string) ([]sim.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return latestPerProduct(l.inventory), nil
}

func (s *MemoryStore) Close() error { return nil }

// latestPerProduct keeps the most recent row of each product, ordered by
// product name.
func latestPerProduct(rows []sim.InventoryRecord) []sim.InventoryRecord {
	latest := make(map[string]sim.InventoryRecord)
	for _, r := range rows {
		if cur, ok := latest[r.Product]; !ok || !r.Date.Before(cur.Date) {
			latest[r.Product] = r
		}
	}
	out := make([]sim.InventoryRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out
}

// cloneSales copies rows including their CAC pointers.
func cloneSales(rows []sim.SalesRecord) []sim.SalesRecord {
	out := make([]sim.SalesRecord, len(rows))
	for i, r := range rows {
		if r.CAC != nil {
			v := *r.CAC
			r.CAC = &v
		}
		out[i] = r
	}
	return out
}
