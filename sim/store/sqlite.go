package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/worldsim/worldsim/sim"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	seed       INTEGER NOT NULL,
	config     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
	company_id TEXT NOT NULL REFERENCES companies(id),
	seq        INTEGER NOT NULL,
	date       TEXT NOT NULL,
	product    TEXT NOT NULL,
	region     TEXT NOT NULL,
	channel    TEXT NOT NULL,
	units_sold INTEGER NOT NULL,
	revenue    REAL NOT NULL,
	cac        REAL,
	PRIMARY KEY (company_id, seq)
);

CREATE TABLE IF NOT EXISTS marketing (
	company_id  TEXT NOT NULL REFERENCES companies(id),
	seq         INTEGER NOT NULL,
	date        TEXT NOT NULL,
	channel     TEXT NOT NULL,
	spend       REAL NOT NULL,
	impressions INTEGER NOT NULL,
	clicks      INTEGER NOT NULL,
	conversions INTEGER NOT NULL,
	revenue     REAL NOT NULL,
	PRIMARY KEY (company_id, seq)
);

CREATE TABLE IF NOT EXISTS inventory (
	company_id       TEXT NOT NULL REFERENCES companies(id),
	seq              INTEGER NOT NULL,
	date             TEXT NOT NULL,
	product          TEXT NOT NULL,
	opening_stock    INTEGER NOT NULL,
	units_produced   INTEGER NOT NULL,
	units_dispatched INTEGER NOT NULL,
	closing_stock    INTEGER NOT NULL,
	lost_demand      INTEGER NOT NULL,
	stockout         INTEGER NOT NULL,
	PRIMARY KEY (company_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_inventory_product_date ON inventory(company_id, product, date);
`

// SQLiteStore implements Store on a single SQLite file. Each company's
// rows carry a per-table sequence number so reads return append order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. The special
// path ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *Company) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, run_id, seed, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.RunID, c.Seed, string(cfg), formatTimestamp(c.CreatedAt), formatTimestamp(c.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrExists, c.ID)
		}
		return fmt.Errorf("create company %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, seed, config, created_at, updated_at FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get company %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seed, config, created_at, updated_at FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateConfig(ctx context.Context, id string, cfg *sim.WorldConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET config = ?, updated_at = ? WHERE id = ?`,
		string(data), formatTimestamp(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update config %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) AppendDay(ctx context.Context, id string, day *sim.DayResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("append day %s: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var last sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT MAX(date) FROM inventory WHERE company_id = ?`, id).Scan(&last); err != nil {
		return fmt.Errorf("append day %s: %w", id, err)
	}
	date := sim.FormatDate(day.Date)
	if last.Valid && date <= last.String {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder, date, last.String)
	}

	if err := insertRows(ctx, tx, "sales", salesInsert, id, len(day.Sales), func(stmt *sql.Stmt, seq, i int) error {
		r := day.Sales[i]
		var cac sql.NullFloat64
		if r.CAC != nil {
			cac = sql.NullFloat64{Float64: *r.CAC, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, id, seq, date, r.Product, r.Region, r.Channel, r.UnitsSold, r.Revenue, cac)
		return err
	}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "marketing", marketingInsert, id, len(day.Marketing), func(stmt *sql.Stmt, seq, i int) error {
		r := day.Marketing[i]
		_, err := stmt.ExecContext(ctx, id, seq, date, r.Channel, r.Spend, r.Impressions, r.Clicks, r.Conversions, r.Revenue)
		return err
	}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "inventory", inventoryInsert, id, len(day.Inventory), func(stmt *sql.Stmt, seq, i int) error {
		r := day.Inventory[i]
		_, err := stmt.ExecContext(ctx, id, seq, date, r.Product, r.OpeningStock, r.UnitsProduced,
			r.UnitsDispatched, r.ClosingStock, r.LostDemand, r.Stockout)
		return err
	}); err != nil {
		return err
	}
	return tx.Commit()
}

const (
	salesInsert     = `INSERT INTO sales (company_id, seq, date, product, region, channel, units_sold, revenue, cac) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	marketingInsert = `INSERT INTO marketing (company_id, seq, date, channel, spend, impressions, clicks, conversions, revenue) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	inventoryInsert = `INSERT INTO inventory (company_id, seq, date, product, opening_stock, units_produced, units_dispatched, closing_stock, lost_demand, stockout) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// insertRows prepares query once and runs exec for n rows, numbering them
// after the table's current highest sequence for the company.
func insertRows(ctx context.Context, tx *sql.Tx, table, query, id string, n int, exec func(stmt *sql.Stmt, seq, i int) error) error {
	if n == 0 {
		return nil
	}
	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM `+table+` WHERE company_id = ?`, id).Scan(&next); err != nil {
		return fmt.Errorf("next %s seq: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if err := exec(stmt, next+i+1, i); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Sales(ctx context.Context, id string) ([]sim.SalesRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, product, region, channel, units_sold, revenue, cac FROM sales WHERE company_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sales %s: %w", id, err)
	}
	defer rows.Close()

	var out []sim.SalesRecord
	for rows.Next() {
		var (
			r    sim.SalesRecord
			date string
			cac  sql.NullFloat64
		)
		if err := rows.Scan(&date, &r.Product, &r.Region, &r.Channel, &r.UnitsSold, &r.Revenue, &cac); err != nil {
			return nil, fmt.Errorf("scan sales: %w", err)
		}
		if r.Date, err = sim.ParseDate(date); err != nil {
			return nil, err
		}
		if cac.Valid {
			v := cac.Float64
			r.CAC = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Marketing(ctx context.Context, id string) ([]sim.MarketingRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, channel, spend, impressions, clicks, conversions, revenue FROM marketing WHERE company_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("marketing %s: %w", id, err)
	}
	defer rows.Close()

	var out []sim.MarketingRecord
	for rows.Next() {
		var (
			r    sim.MarketingRecord
			date string
		)
		if err := rows.Scan(&date, &r.Channel, &r.Spend, &r.Impressions, &r.Clicks, &r.Conversions, &r.Revenue); err != nil {
			return nil, fmt.Errorf("scan marketing: %w", err)
		}
		if r.Date, err = sim.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const sqliteInventoryColumns = `date, product, opening_stock, units_produced, units_dispatched, closing_stock, lost_demand, stockout`

func (s *SQLiteStore) Inventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	return s.queryInventory(ctx,
		`SELECT `+sqliteInventoryColumns+` FROM inventory WHERE company_id = ? ORDER BY seq`, id)
}

func (s *SQLiteStore) LatestInventory(ctx context.Context, id string) ([]sim.InventoryRecord, error) {
	if err := s.requireCompany(ctx, id); err != nil {
		return nil, err
	}
	return s.queryInventory(ctx, `
		SELECT `+sqliteInventoryColumns+` FROM inventory i
		WHERE company_id = ?1 AND date = (
			SELECT MAX(date) FROM inventory WHERE company_id = ?1 AND product = i.product
		)
		ORDER BY product`, id)
}

func (s *SQLiteStore) queryInventory(ctx context.Context, query string, args ...any) ([]sim.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer rows.Close()

	var out []sim.InventoryRecord
	for rows.Next() {
		var (
			r    sim.InventoryRecord
			date string
		)
		if err := rows.Scan(&date, &r.Product, &r.OpeningStock, &r.UnitsProduced,
			&r.UnitsDispatched, &r.ClosingStock, &r.LostDemand, &r.Stockout); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		if r.Date, err = sim.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) requireCompany(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("lookup company %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*Company, error) {
	var (
		c                Company
		cfg              string
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.RunID, &c.Seed, &cfg, &created, &updated); err != nil {
		return nil, err
	}
	c.Config = &sim.WorldConfig{}
	if err := json.Unmarshal([]byte(cfg), c.Config); err != nil {
		return nil, fmt.Errorf("decode config of %s: %w", c.ID, err)
	}
	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
