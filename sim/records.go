package sim

import "time"

// SalesRecord is one (date, product, region, channel) cell with non-zero units.
type SalesRecord struct {
	Date      time.Time `json:"date"`
	Product   string    `json:"product"`
	Region    string    `json:"region"`
	Channel   string    `json:"channel"`
	UnitsSold int       `json:"units_sold"`
	Revenue   float64   `json:"revenue"`
	// CAC is nil when the channel had no conversions that day.
	CAC *float64 `json:"CAC"`
}

// MarketingRecord is one (date, channel) row.
type MarketingRecord struct {
	Date        time.Time `json:"date"`
	Channel     string    `json:"channel"`
	Spend       float64   `json:"spend"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	Conversions int       `json:"conversions"`
	Revenue     float64   `json:"revenue"`
}

// InventoryRecord is one (date, product) row of the stock ledger.
type InventoryRecord struct {
	Date            time.Time `json:"date"`
	Product         string    `json:"product"`
	OpeningStock    int       `json:"opening_stock"`
	UnitsProduced   int       `json:"units_produced"`
	UnitsDispatched int       `json:"units_dispatched"`
	ClosingStock    int       `json:"closing_stock"`
	LostDemand      int       `json:"lost_demand"`
	Stockout        bool      `json:"stockout_flag"`
}

// UnitEconomicsRow is one product row of the static unit economics table.
type UnitEconomicsRow struct {
	Product       string  `json:"product"`
	SellingPrice  float64 `json:"selling_price"`
	COGS          float64 `json:"cogs"`
	GrossMargin   float64 `json:"gross_margin"`
	PackagingCost float64 `json:"packaging_cost"`
	LogisticsCost float64 `json:"logistics_cost"`
}

// StockState maps product to closing stock after the most recent simulated day.
type StockState map[string]int

// Clone returns an independent copy.
func (s StockState) Clone() StockState {
	out := make(StockState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// DayResult is everything one simulated day appends, plus the stock carried
// into the next day.
type DayResult struct {
	Date      time.Time
	Sales     []SalesRecord
	Marketing []MarketingRecord
	Inventory []InventoryRecord
	Stock     StockState
}

// History is the output of a full-range run.
type History struct {
	Sales     []SalesRecord
	Marketing []MarketingRecord
	Inventory []InventoryRecord
	Stock     StockState // closing stock after the last day
	Days      int
}

// Append adds a day's records to the history and advances its stock.
func (h *History) Append(day *DayResult) {
	h.Sales = append(h.Sales, day.Sales...)
	h.Marketing = append(h.Marketing, day.Marketing...)
	h.Inventory = append(h.Inventory, day.Inventory...)
	h.Stock = day.Stock.Clone()
	h.Days++
}

// ReconstructStock rebuilds the stock state from an inventory log: for each
// product the closing stock of its most recent row, or cfg.StartingStock when
// the product never appears. It also returns the latest date in the log
// (zero time for an empty log).
func ReconstructStock(cfg *WorldConfig, log []InventoryRecord) (StockState, time.Time) {
	stock := make(StockState, len(cfg.Products))
	for _, p := range cfg.Products {
		stock[p] = cfg.StartingStock
	}
	latest := make(map[string]time.Time, len(cfg.Products))
	var last time.Time
	for _, row := range log {
		d := civilDate(row.Date)
		if d.After(last) {
			last = d
		}
		if _, known := stock[row.Product]; !known {
			continue
		}
		if seen, ok := latest[row.Product]; !ok || !d.Before(seen) {
			latest[row.Product] = d
			stock[row.Product] = row.ClosingStock
		}
	}
	return stock, last
}
