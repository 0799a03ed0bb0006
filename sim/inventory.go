package sim

import (
	"fmt"
	"time"
)

// position is one product's stock position before dispatch.
type position struct {
	Opening   int
	Produced  int
	Demand    int
	Available int
	Sold      int
	Lost      int
}

func openPosition(opening, produced, demand int) position {
	available := opening + produced
	sold := demand
	if sold > available {
		sold = available
	}
	if sold < 0 {
		sold = 0
	}
	lost := demand - available
	if lost < 0 {
		lost = 0
	}
	return position{
		Opening:   opening,
		Produced:  produced,
		Demand:    demand,
		Available: available,
		Sold:      sold,
		Lost:      lost,
	}
}

// close books the units actually dispatched and returns the ledger row.
// Sold units the allocation could not place (zero total region or channel
// weight) stay in stock and count as lost demand, so dispatched + lost
// always equals demand.
func (p position) close(date time.Time, product string, dispatched int) InventoryRecord {
	closing := p.Available - dispatched
	lost := p.Lost + p.Sold - dispatched
	return InventoryRecord{
		Date:            date,
		Product:         product,
		OpeningStock:    p.Opening,
		UnitsProduced:   p.Produced,
		UnitsDispatched: dispatched,
		ClosingStock:    closing,
		LostDemand:      lost,
		Stockout:        closing <= 0,
	}
}

// CheckLedger verifies the per-row stock invariants:
// closing = opening + produced - dispatched, dispatched never exceeds what was
// available, lost demand is non-negative, and the stockout flag is set exactly
// when closing stock is zero or below.
func (r InventoryRecord) CheckLedger() error {
	available := r.OpeningStock + r.UnitsProduced
	if r.ClosingStock != available-r.UnitsDispatched {
		return fmt.Errorf("%s %s: closing %d != opening %d + produced %d - dispatched %d",
			FormatDate(r.Date), r.Product, r.ClosingStock, r.OpeningStock, r.UnitsProduced, r.UnitsDispatched)
	}
	if r.UnitsDispatched > available {
		return fmt.Errorf("%s %s: dispatched %d exceeds available %d",
			FormatDate(r.Date), r.Product, r.UnitsDispatched, available)
	}
	if r.LostDemand < 0 {
		return fmt.Errorf("%s %s: negative lost demand %d", FormatDate(r.Date), r.Product, r.LostDemand)
	}
	if r.Stockout != (r.ClosingStock <= 0) {
		return fmt.Errorf("%s %s: stockout flag %t with closing stock %d",
			FormatDate(r.Date), r.Product, r.Stockout, r.ClosingStock)
	}
	return nil
}

// VerifyDay checks every inventory row of a day and that the units sold for
// each product across all (region, channel) cells equal its dispatched units.
func VerifyDay(day *DayResult) error {
	sold := make(map[string]int, len(day.Inventory))
	for _, s := range day.Sales {
		sold[s.Product] += s.UnitsSold
	}
	for _, inv := range day.Inventory {
		if err := inv.CheckLedger(); err != nil {
			return err
		}
		if sold[inv.Product] != inv.UnitsDispatched {
			return fmt.Errorf("%s %s: sales total %d != dispatched %d",
				FormatDate(inv.Date), inv.Product, sold[inv.Product], inv.UnitsDispatched)
		}
	}
	return nil
}
