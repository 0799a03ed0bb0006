package tables

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/worldsim/worldsim/sim"
)

// readTable checks the header row against columns and hands every data row
// to parse.
func readTable(r io.Reader, name string, columns []string, parse func(p *cellParser) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(columns)

	header, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return fmt.Errorf("%s: reading header: %w", name, err)
	}
	for i, col := range columns {
		if header[i] != col {
			return fmt.Errorf("%s: column %d is %q, expected %q", name, i, header[i], col)
		}
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		p := &cellParser{row: row, columns: columns}
		if err := parse(p); err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
	}
}

// cellParser keeps the first conversion failure of a row so that fields can
// be converted one per line and checked once.
type cellParser struct {
	row     []string
	columns []string
	err     error
}

func (p *cellParser) fail(i int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", p.columns[i], err)
	}
}

func (p *cellParser) str(i int) string { return p.row[i] }

func (p *cellParser) date(i int) time.Time {
	d, err := sim.ParseDate(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return d
}

func (p *cellParser) integer(i int) int {
	v, err := strconv.Atoi(p.row[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *cellParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.row[i], 64)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *cellParser) optionalFloat(i int) *float64 {
	if p.row[i] == "" {
		return nil
	}
	v := p.float(i)
	return &v
}

func (p *cellParser) stockout(i int) bool {
	switch p.row[i] {
	case StockoutYes:
		return true
	case StockoutNo:
		return false
	default:
		p.fail(i, fmt.Errorf("want %s or %s, got %q", StockoutYes, StockoutNo, p.row[i]))
		return false
	}
}

// ReadSales parses a sales table written by WriteSales.
func ReadSales(r io.Reader) ([]sim.SalesRecord, error) {
	var rows []sim.SalesRecord
	err := readTable(r, "sales", SalesColumns, func(p *cellParser) error {
		rec := sim.SalesRecord{
			Date:      p.date(0),
			Product:   p.str(1),
			Region:    p.str(2),
			Channel:   p.str(3),
			UnitsSold: p.integer(4),
			Revenue:   p.float(5),
			CAC:       p.optionalFloat(6),
		}
		if p.err != nil {
			return p.err
		}
		rows = append(rows, rec)
		return nil
	})
	return rows, err
}

// ReadMarketing parses a marketing table written by WriteMarketing.
func ReadMarketing(r io.Reader) ([]sim.MarketingRecord, error) {
	var rows []sim.MarketingRecord
	err := readTable(r, "marketing", MarketingColumns, func(p *cellParser) error {
		rec := sim.MarketingRecord{
			Date:        p.date(0),
			Channel:     p.str(1),
			Spend:       p.float(2),
			Impressions: p.integer(3),
			Clicks:      p.integer(4),
			Conversions: p.integer(5),
			Revenue:     p.float(6),
		}
		if p.err != nil {
			return p.err
		}
		rows = append(rows, rec)
		return nil
	})
	return rows, err
}

// ReadInventory parses an inventory table written by WriteInventory.
func ReadInventory(r io.Reader) ([]sim.InventoryRecord, error) {
	var rows []sim.InventoryRecord
	err := readTable(r, "inventory", InventoryColumns, func(p *cellParser) error {
		rec := sim.InventoryRecord{
			Date:            p.date(0),
			Product:         p.str(1),
			OpeningStock:    p.integer(2),
			UnitsProduced:   p.integer(3),
			UnitsDispatched: p.integer(4),
			ClosingStock:    p.integer(5),
			LostDemand:      p.integer(6),
			Stockout:        p.stockout(7),
		}
		if p.err != nil {
			return p.err
		}
		rows = append(rows, rec)
		return nil
	})
	return rows, err
}

// ReadUnitEconomics parses a unit economics table written by WriteUnitEconomics.
func ReadUnitEconomics(r io.Reader) ([]sim.UnitEconomicsRow, error) {
	var rows []sim.UnitEconomicsRow
	err := readTable(r, "unit_economics", UnitEconomicsColumns, func(p *cellParser) error {
		rec := sim.UnitEconomicsRow{
			Product:       p.str(0),
			SellingPrice:  p.float(1),
			COGS:          p.float(2),
			GrossMargin:   p.float(3),
			PackagingCost: p.float(4),
			LogisticsCost: p.float(5),
		}
		if p.err != nil {
			return p.err
		}
		rows = append(rows, rec)
		return nil
	})
	return rows, err
}
