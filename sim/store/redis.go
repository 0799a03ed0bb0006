package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/worldsim/worldsim/sim"
)

// CachedStore wraps a primary Store with a Redis read-through cache. Writes
// go to the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
//
// Only the per-company documents that every request touches are cached: the
// company itself and its latest inventory rows. Full logs always come from
// the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateCompany(ctx context.Context, c *Company) error {
	if err := s.primary.CreateCompany(ctx, c); err != nil {
		return err
	}
	s.cache(ctx, companyKey(c.ID), c)
	return nil
}

func (s *CachedStore) UpdateConfig(ctx context.Context, id string, cfg *sim.WorldConfig) error {
	if err := s.primary.UpdateConfig(ctx, id, cfg); err != nil {
		return err
	}
	s.rdb.Del(ctx, companyKey(id))
	return nil
}

func (s *CachedStore) AppendDay(ctx context.Context, id string, day *sim.DayResult) error {
	if err := s.primary.AppendDay(ctx, id, day); err != nil {
		return err
	}
	s.rdb.Del(ctx, latestKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	data, err := s.rdb.Get(ctx, companyKey(id)).Bytes()
	if err == nil {
		var c Company
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, companyKey(id), c)
	return c, nil
}

func (s *CachedStore) LatestInventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	data, err := s.rdb.Get(ctx, latestKey(id)).Bytes()
	if err == nil {
		var rows []sim.InventoryRecord
		if json.Unmarshal(data, &rows) == nil {
			return rows, nil
		}
	}

	rows, err := s.primary.LatestInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, latestKey(id), rows)
	return rows, nil
}

// --- Pass-through ---

func (s *CachedStore) ListCompanies(ctx context.Context) ([]Company, error) {
	return s.primary.ListCompanies(ctx)
}

func (s *CachedStore) Sales(ctx context.Context, id string) ([]sim.SalesRecord, error) {
	return s.primary.Sales(ctx, id)
}

func (s *CachedStore) Marketing(ctx context.Context, id string) ([]sim.MarketingRecord, error) {
	return s.primary.Marketing(ctx, id)
}

func (s *CachedStore) Inventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	return s.primary.Inventory(ctx, id)
}

func (s *CachedStore) Close() error {
	rerr := s.rdb.Close()
	if err := s.primary.Close(); err != nil {
		return err
	}
	return rerr
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

// --- Key helpers ---

func companyKey(id string) string { return fmt.Sprintf("company:%s", id) }
func latestKey(id string) string  { return fmt.Sprintf("company:%s:latest_inventory", id) }
