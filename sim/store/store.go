// Package store defines the persistence interface for simulated companies.
// Implementations include SQLite (default, single file), PostgreSQL (shared
// server), Redis (read-through cache in front of either) and in-memory (for
// testing).
//
// The sales, marketing and inventory logs are append-only. AppendDay writes
// all three record sets of one day in a single transaction: a reader never
// sees one table of a day without the other two.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/worldsim/worldsim/sim"
)

var (
	// ErrNotFound is returned when a company does not exist.
	ErrNotFound = errors.New("company not found")
	// ErrExists is returned when creating a company whose ID is taken.
	ErrExists = errors.New("company already exists")
	// ErrOutOfOrder is returned when appending a day that is not after the
	// latest persisted day.
	ErrOutOfOrder = errors.New("day is not after the latest persisted day")
)

// Company is a persisted simulated company.
type Company struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"` // unique per creation, survives config updates
	Seed      int64            `json:"seed"`
	Config    *sim.WorldConfig `json:"config"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store is the persistence interface.
type Store interface {
	// --- Company operations ---

	// CreateCompany persists a new company. Returns ErrExists if the ID is taken.
	CreateCompany(ctx context.Context, c *Company) error

	// GetCompany retrieves a company by ID. Returns ErrNotFound if absent.
	GetCompany(ctx context.Context, id string) (*Company, error)

	// ListCompanies returns all companies ordered by ID.
	ListCompanies(ctx context.Context) ([]Company, error)

	// UpdateConfig replaces a company's configuration (used by shocks).
	UpdateConfig(ctx context.Context, id string, cfg *sim.WorldConfig) error

	// --- Append-only logs ---

	// AppendDay atomically appends one day's sales, marketing and inventory
	// rows. Returns ErrOutOfOrder if the day is not after the latest
	// persisted day.
	AppendDay(ctx context.Context, id string, day *sim.DayResult) error

	// Sales returns the company's sales log in append order.
	Sales(ctx context.Context, id string) ([]sim.SalesRecord, error)

	// Marketing returns the company's marketing log in append order.
	Marketing(ctx context.Context, id string) ([]sim.MarketingRecord, error)

	// Inventory returns the company's inventory log in append order.
	Inventory(ctx context.Context, id string) ([]sim.InventoryRecord, error)

	// LatestInventory returns the most recent inventory row of each product,
	// which is all that resuming a simulation needs.
	LatestInventory(ctx context.Context, id string) ([]sim.InventoryRecord, error)

	// Close releases the store's resources.
	Close() error
}
