// Package tables reads and writes the simulation's output tables as CSV.
//
// Column order and value formatting are fixed: dates are YYYY-MM-DD, the
// stockout flag is Yes/No and an undefined CAC is an empty cell. Two runs that
// produce equal records produce byte-identical files.
package tables

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/worldsim/worldsim/sim"
)

// CSV column headers, one slice per table.
var (
	SalesColumns = []string{
		"date", "product", "region", "channel", "units_sold", "revenue", "CAC",
	}
	MarketingColumns = []string{
		"date", "channel", "spend", "impressions", "clicks", "conversions", "revenue",
	}
	InventoryColumns = []string{
		"date", "product", "opening_stock", "units_produced", "units_dispatched",
		"closing_stock", "lost_demand", "stockout_flag",
	}
	UnitEconomicsColumns = []string{
		"product", "selling_price", "cogs", "gross_margin", "packaging_cost", "logistics_cost",
	}
)

// Stockout flag cell values.
const (
	StockoutYes = "Yes"
	StockoutNo  = "No"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCAC(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatStockout(b bool) string {
	if b {
		return StockoutYes
	}
	return StockoutNo
}

// WriteSales writes the sales table, header first.
func WriteSales(w io.Writer, rows []sim.SalesRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(SalesColumns); err != nil {
		return fmt.Errorf("writing sales header: %w", err)
	}
	for i, r := range rows {
		row := []string{
			sim.FormatDate(r.Date),
			r.Product,
			r.Region,
			r.Channel,
			strconv.Itoa(r.UnitsSold),
			formatFloat(r.Revenue),
			formatCAC(r.CAC),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing sales row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMarketing writes the marketing table, header first.
func WriteMarketing(w io.Writer, rows []sim.MarketingRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(MarketingColumns); err != nil {
		return fmt.Errorf("writing marketing header: %w", err)
	}
	for i, r := range rows {
		row := []string{
			sim.FormatDate(r.Date),
			r.Channel,
			formatFloat(r.Spend),
			strconv.Itoa(r.Impressions),
			strconv.Itoa(r.Clicks),
			strconv.Itoa(r.Conversions),
			formatFloat(r.Revenue),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing marketing row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteInventory writes the inventory table, header first.
func WriteInventory(w io.Writer, rows []sim.InventoryRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(InventoryColumns); err != nil {
		return fmt.Errorf("writing inventory header: %w", err)
	}
	for i, r := range rows {
		row := []string{
			sim.FormatDate(r.Date),
			r.Product,
			strconv.Itoa(r.OpeningStock),
			strconv.Itoa(r.UnitsProduced),
			strconv.Itoa(r.UnitsDispatched),
			strconv.Itoa(r.ClosingStock),
			strconv.Itoa(r.LostDemand),
			formatStockout(r.Stockout),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing inventory row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteUnitEconomics writes the static unit economics table, header first.
func WriteUnitEconomics(w io.Writer, rows []sim.UnitEconomicsRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(UnitEconomicsColumns); err != nil {
		return fmt.Errorf("writing unit economics header: %w", err)
	}
	for i, r := range rows {
		row := []string{
			r.Product,
			formatFloat(r.SellingPrice),
			formatFloat(r.COGS),
			formatFloat(r.GrossMargin),
			formatFloat(r.PackagingCost),
			formatFloat(r.LogisticsCost),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing unit economics row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
