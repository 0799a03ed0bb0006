package sim

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// StepDay simulates one calendar day.
//
// Stages run in a fixed order, all drawing from rng:
//  1. demand per product
//  2. production per product (with supply disruption); opening stock
//  3. allocation of sold units over regions then channels
//  4. inventory close
//  5. marketing, derived from the day's sales revenue
//  6. CAC stamped onto the sales rows
//
// StepDay does no I/O and never mutates stock or cfg. cfg must already be
// validated. The same (date, stock, rng state, cfg) always yields the same
// result.
func StepDay(date time.Time, stock StockState, rng *rand.Rand, cfg *WorldConfig) *DayResult {
	date = civilDate(date)

	demand := generateDemand(rng, cfg)
	produced := runProduction(rng, cfg)

	day := &DayResult{
		Date:      date,
		Inventory: make([]InventoryRecord, 0, len(cfg.Products)),
		Stock:     make(StockState, len(cfg.Products)),
	}

	for _, p := range cfg.Products {
		pos := openPosition(openingStock(cfg, stock, p), produced[p], demand[p])
		price := cfg.UnitEcon[p].SellingPrice

		dispatched := 0
		for _, cell := range allocateUnits(pos.Sold, cfg) {
			day.Sales = append(day.Sales, SalesRecord{
				Date:      date,
				Product:   p,
				Region:    cell.Region,
				Channel:   cell.Channel,
				UnitsSold: cell.Units,
				Revenue:   float64(cell.Units) * price,
			})
			dispatched += cell.Units
		}

		rec := pos.close(date, p, dispatched)
		day.Inventory = append(day.Inventory, rec)
		day.Stock[p] = rec.ClosingStock
	}

	day.Marketing = simulateMarketing(rng, date, cfg, day.Sales)
	attributeCAC(day.Sales, day.Marketing)

	logrus.Debugf("[%s] %d sales rows, %d marketing rows, stock %v",
		FormatDate(date), len(day.Sales), len(day.Marketing), day.Stock)
	return day
}
