package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/worldsim/worldsim/sim"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	run_id     UUID NOT NULL,
	seed       BIGINT NOT NULL,
	config     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
	company_id TEXT NOT NULL REFERENCES companies(id),
	seq        BIGSERIAL,
	date       DATE NOT NULL,
	product    TEXT NOT NULL,
	region     TEXT NOT NULL,
	channel    TEXT NOT NULL,
	units_sold INTEGER NOT NULL,
	revenue    NUMERIC NOT NULL,
	cac        NUMERIC,
	PRIMARY KEY (company_id, seq)
);

CREATE TABLE IF NOT EXISTS marketing (
	company_id  TEXT NOT NULL REFERENCES companies(id),
	seq         BIGSERIAL,
	date        DATE NOT NULL,
	channel     TEXT NOT NULL,
	spend       NUMERIC NOT NULL,
	impressions INTEGER NOT NULL,
	clicks      INTEGER NOT NULL,
	conversions INTEGER NOT NULL,
	revenue     NUMERIC NOT NULL,
	PRIMARY KEY (company_id, seq)
);

CREATE TABLE IF NOT EXISTS inventory (
	company_id       TEXT NOT NULL REFERENCES companies(id),
	seq              BIGSERIAL,
	date             DATE NOT NULL,
	product          TEXT NOT NULL,
	opening_stock    INTEGER NOT NULL,
	units_produced   INTEGER NOT NULL,
	units_dispatched INTEGER NOT NULL,
	closing_stock    INTEGER NOT NULL,
	lost_demand      INTEGER NOT NULL,
	stockout         BOOLEAN NOT NULL,
	PRIMARY KEY (company_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_inventory_product_date ON inventory(company_id, product, date);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres opens a pool for url and applies the schema.
func ConnectPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, run_id, seed, config, created_at, updated_at)
		 VALUES ($1, $2::UUID, $3, $4::JSONB, $5, $6)`,
		c.ID, c.RunID, c.Seed, string(cfg), c.CreatedAt, c.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrExists, c.ID)
	}
	if err != nil {
		return fmt.Errorf("create company %s: %w", c.ID, err)
	}
	return nil
}

const postgresCompanyColumns = `id, run_id::TEXT, seed, config::TEXT, created_at, updated_at`

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresCompanyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanPostgresCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get company %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postgresCompanyColumns+` FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanPostgresCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanPostgresCompany(row pgx.Row) (*Company, error) {
	var (
		c   Company
		cfg string
	)
	if err := row.Scan(&c.ID, &c.RunID, &c.Seed, &cfg, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Config = &sim.WorldConfig{}
	if err := json.Unmarshal([]byte(cfg), c.Config); err != nil {
		return nil, fmt.Errorf("decode config of %s: %w", c.ID, err)
	}
	return &c, nil
}

func (s *PostgresStore) UpdateConfig(ctx context.Context, id string, cfg *sim.WorldConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET config = $2::JSONB, updated_at = $3 WHERE id = $1`,
		id, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update config %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AppendDay(ctx context.Context, id string, day *sim.DayResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the company row so concurrent appends for one company serialize.
	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM companies WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("append day %s: %w", id, err)
	}

	var last *time.Time
	if err := tx.QueryRow(ctx, `SELECT MAX(date) FROM inventory WHERE company_id = $1`, id).Scan(&last); err != nil {
		return fmt.Errorf("append day %s: %w", id, err)
	}
	if last != nil && !day.Date.After(*last) {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder, sim.FormatDate(day.Date), sim.FormatDate(*last))
	}

	batch := &pgx.Batch{}
	for _, r := range day.Sales {
		var cac *string
		if r.CAC != nil {
			v := decimal.NewFromFloat(*r.CAC).String()
			cac = &v
		}
		batch.Queue(
			`INSERT INTO sales (company_id, date, product, region, channel, units_sold, revenue, cac)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC)`,
			id, day.Date, r.Product, r.Region, r.Channel, r.UnitsSold,
			decimal.NewFromFloat(r.Revenue).String(), cac,
		)
	}
	for _, r := range day.Marketing {
		batch.Queue(
			`INSERT INTO marketing (company_id, date, channel, spend, impressions, clicks, conversions, revenue)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8::NUMERIC)`,
			id, day.Date, r.Channel, decimal.NewFromFloat(r.Spend).String(),
			r.Impressions, r.Clicks, r.Conversions, decimal.NewFromFloat(r.Revenue).String(),
		)
	}
	for _, r := range day.Inventory {
		batch.Queue(
			`INSERT INTO inventory (company_id, date, product, opening_stock, units_produced,
			                        units_dispatched, closing_stock, lost_demand, stockout)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, day.Date, r.Product, r.OpeningStock, r.UnitsProduced,
			r.UnitsDispatched, r.ClosingStock, r.LostDemand, r.Stockout,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append day %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Sales(ctx context.Context, id string) ([]sim.SalesRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT date, product, region, channel, units_sold, revenue::TEXT, cac::TEXT
		 FROM sales WHERE company_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sales %s: %w", id, err)
	}
	defer rows.Close()

	var out []sim.SalesRecord
	for rows.Next() {
		var (
			r       sim.SalesRecord
			revenue string
			cac     *string
		)
		if err := rows.Scan(&r.Date, &r.Product, &r.Region, &r.Channel, &r.UnitsSold, &revenue, &cac); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		r.Revenue = numericFloat(revenue)
		if cac != nil {
			v := numericFloat(*cac)
			r.CAC = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Marketing(ctx context.Context, id string) ([]sim.MarketingRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT date, channel, spend::TEXT, impressions, clicks, conversions, revenue::TEXT
		 FROM marketing WHERE company_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("marketing %s: %w", id, err)
	}
	defer rows.Close()

	var out []sim.MarketingRecord
	for rows.Next() {
		var (
			r              sim.MarketingRecord
			spend, revenue string
		)
		if err := rows.Scan(&r.Date, &r.Channel, &spend, &r.Impressions, &r.Clicks, &r.Conversions, &revenue); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		r.Spend = numericFloat(spend)
		r.Revenue = numericFloat(revenue)
		out = append(out, r)
	}
	return out, rows.Err()
}

const postgresInventoryColumns = `date, product, opening_stock, units_produced, units_dispatched, closing_stock, lost_demand, stockout`

func (s *PostgresStore) Inventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	return s.queryInventory(ctx,
		`SELECT `+postgresInventoryColumns+` FROM inventory WHERE company_id = $1 ORDER BY seq`, id)
}

func (s *PostgresStore) LatestInventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	return s.queryInventory(ctx,
		`SELECT DISTINCT ON (product) `+postgresInventoryColumns+`
		 FROM inventory WHERE company_id = $1
		 ORDER BY product, date DESC, seq DESC`, id)
}

func (s *PostgresStore) queryInventory(ctx context.Context, query string, args ...any) ([]sim.InventoryRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer rows.Close()

	var out []sim.InventoryRecord
	for rows.Next() {
		var r sim.InventoryRecord
		if err := rows.Scan(&r.Date, &r.Product, &r.OpeningStock, &r.UnitsProduced,
			&r.UnitsDispatched, &r.ClosingStock, &r.LostDemand, &r.Stockout); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) requireCompany(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup company %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// numericFloat converts a NUMERIC text value back to the float64 the records
// carry.
func numericFloat(s string) float64 {
	d, _ := decimal.NewFromString(s)
	return d.InexactFloat64()
}
