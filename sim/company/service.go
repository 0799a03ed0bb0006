// Package company runs the lifecycle of persisted simulated companies: create
// a company with its initial history, advance it day by day, apply shock
// scenarios and read its tables back.
//
// Every operation names the company explicitly; there is no notion of a
// current company. Days are persisted one at a time through store.AppendDay,
// so a batch that fails part-way keeps the days already written.
package company

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/metrics"
	"github.com/worldsim/worldsim/sim/store"
	"github.com/worldsim/worldsim/sim/tables"
)

// ErrUnknownShock is returned by ApplyShock for an unregistered shock name.
var ErrUnknownShock = errors.New("unknown shock")

// Broadcaster receives every day persisted by the service. The HTTP server's
// WebSocket hub implements it.
type Broadcaster interface {
	BroadcastDay(companyID string, day *sim.DayResult)
}

// Service runs company operations against a store.
type Service struct {
	store store.Store
	hub   Broadcaster // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a company service. Pass nil for hub if no live feed is
// needed.
func NewService(st store.Store, hub Broadcaster) *Service {
	return &Service{
		store: st,
		hub:   hub,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock serializes writes to one company.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// CreateRequest describes a new company.
type CreateRequest struct {
	ID     string
	Config *sim.WorldConfig
	Start  time.Time
	End    time.Time
	// Seed defaults to a key derived from ID.
	Seed *int64
}

// YearRange returns January 1 through December 31 of year.
func YearRange(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Create persists a new company and simulates its history from Start to End.
// The config is validated before anything is written. If a day fails to
// persist, the company and the days before it remain.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Company, error) {
	if req.ID == "" {
		return nil, errors.New("company id is required")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.End.Before(req.Start) {
		return nil, &sim.InvalidRangeError{Start: req.Start, End: req.End}
	}
	seed := int64(sim.KeyFromName(req.ID))
	if req.Seed != nil {
		seed = *req.Seed
	}

	defer s.lock(req.ID)()

	now := time.Now().UTC()
	c := &store.Company{
		ID:        req.ID,
		RunID:     uuid.NewString(),
		Seed:      seed,
		Config:    req.Config.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCompany(ctx, c); err != nil {
		metrics.StoreErrors.WithLabelValues("create_company").Inc()
		return nil, err
	}
	metrics.CompaniesCreated.Inc()

	_, err := sim.RunRange(c.Config, req.Start, req.End, seed, nil, func(day *sim.DayResult) error {
		return s.persist(ctx, c.ID, day, "create")
	})
	if err != nil {
		return c, fmt.Errorf("create %s: %w", c.ID, err)
	}
	logrus.Infof("created company %s (run %s, seed %d)", c.ID, c.RunID, seed)
	return c, nil
}

// AdvanceOptions controls Advance.
type AdvanceOptions struct {
	Days int
	// Seed overrides the company's seed.
	Seed *int64
	// Random seeds each day from the wall clock instead.
	Random bool
}

// Advance simulates opts.Days days past the company's latest day, persisting
// each one before the next is simulated. It stops at the first failure and
// returns the days persisted so far along with the error.
func (s *Service) Advance(ctx context.Context, id string, opts AdvanceOptions) ([]*sim.DayResult, error) {
	if opts.Days < 1 {
		return nil, fmt.Errorf("days must be at least 1, got %d", opts.Days)
	}
	defer s.lock(id)()

	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	var seed *int64
	switch {
	case opts.Random:
	case opts.Seed != nil:
		seed = opts.Seed
	default:
		seed = &c.Seed
	}

	days := make([]*sim.DayResult, 0, opts.Days)
	for i := 0; i < opts.Days; i++ {
		if err := ctx.Err(); err != nil {
			return days, err
		}
		latest, err := s.store.LatestInventory(ctx, id)
		if err != nil {
			metrics.StoreErrors.WithLabelValues("latest_inventory").Inc()
			return days, err
		}
		day, err := sim.AdvanceOneDay(c.Config, latest, seed)
		if err != nil {
			return days, fmt.Errorf("advance %s: %w", id, err)
		}
		if err := s.persist(ctx, id, day, "advance"); err != nil {
			return days, fmt.Errorf("advance %s: %w", id, err)
		}
		days = append(days, day)
	}
	logrus.Infof("advanced %s by %d days to %s", id, len(days), sim.FormatDate(days[len(days)-1].Date))
	return days, nil
}

// persist appends one day, records metrics and notifies the hub.
func (s *Service) persist(ctx context.Context, id string, day *sim.DayResult, mode string) error {
	start := time.Now()
	if err := s.store.AppendDay(ctx, id, day); err != nil {
		metrics.StoreErrors.WithLabelValues("append_day").Inc()
		return err
	}
	metrics.PersistDuration.Observe(time.Since(start).Seconds())
	metrics.DaysSimulated.WithLabelValues(mode).Inc()
	for _, r := range day.Inventory {
		metrics.UnitsSold.Add(float64(r.UnitsDispatched))
		metrics.LostDemand.Add(float64(r.LostDemand))
	}
	if s.hub != nil {
		s.hub.BroadcastDay(id, day)
	}
	return nil
}

// ApplyShock replaces the company's config with its shocked copy. Only days
// simulated afterwards are affected.
func (s *Service) ApplyShock(ctx context.Context, id, name string) (*sim.WorldConfig, error) {
	if !sim.IsValidShock(name) {
		return nil, fmt.Errorf("%w %q", ErrUnknownShock, name)
	}
	defer s.lock(id)()

	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	shocked, err := sim.ApplyShock(name, c.Config)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateConfig(ctx, id, shocked); err != nil {
		metrics.StoreErrors.WithLabelValues("update_config").Inc()
		return nil, err
	}
	metrics.ShocksApplied.WithLabelValues(name).Inc()
	logrus.Infof("applied shock %s to %s", name, id)
	return shocked, nil
}

// Get returns a company.
func (s *Service) Get(ctx context.Context, id string) (*store.Company, error) {
	return s.store.GetCompany(ctx, id)
}

// List returns all companies.
func (s *Service) List(ctx context.Context) ([]store.Company, error) {
	return s.store.ListCompanies(ctx)
}

// Tables reads the full table set of a company, with unit economics derived
// from its current config.
func (s *Service) Tables(ctx context.Context, id string) (*tables.Set, error) {
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	set := &tables.Set{UnitEconomics: c.Config.UnitEconomicsTable()}
	if set.Sales, err = s.store.Sales(ctx, id); err != nil {
		return nil, err
	}
	if set.Marketing, err = s.store.Marketing(ctx, id); err != nil {
		return nil, err
	}
	if set.Inventory, err = s.store.Inventory(ctx, id); err != nil {
		return nil, err
	}
	return set, nil
}

// Summary computes run totals for a company.
func (s *Service) Summary(ctx context.Context, id string) (*sim.RunSummary, error) {
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	set, err := s.Tables(ctx, id)
	if err != nil {
		return nil, err
	}
	return sim.Summarize(c.Config, set.Sales, set.Marketing, set.Inventory), nil
}
