package sim

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductSummary aggregates one product over a run.
type ProductSummary struct {
	Product         string
	UnitsSold       int
	Revenue         decimal.Decimal
	ProductCost     decimal.Decimal // units × (cogs + packaging + logistics)
	Profit          decimal.Decimal // revenue − product cost, before marketing
	LostDemand      int
	StockoutDays    int
	AvgClosingStock float64
}

// ChannelSummary aggregates one marketing channel over a run.
type ChannelSummary struct {
	Channel     string
	Revenue     decimal.Decimal
	Spend       decimal.Decimal
	Conversions int
	ProductCost decimal.Decimal
	NetProfit   decimal.Decimal // revenue − product cost − spend
	// MeanROAS is the mean of daily revenue/spend over days with spend; nil
	// when the channel never spent.
	MeanROAS *float64
}

// RunSummary aggregates a run's tables.
type RunSummary struct {
	First, Last time.Time
	Days        int
	UnitsSold   int
	Revenue     decimal.Decimal
	Spend       decimal.Decimal
	LostDemand  int
	Products    []ProductSummary // configured product order
	Channels    []ChannelSummary // configured channel order
}

// Summarize computes run totals from the three log tables. Safe for empty
// tables (returns zero-value fields). Rows for products or channels absent
// from cfg are ignored.
func Summarize(cfg *WorldConfig, sales []SalesRecord, marketing []MarketingRecord, inventory []InventoryRecord) *RunSummary {
	summary := &RunSummary{
		Products: make([]ProductSummary, len(cfg.Products)),
		Channels: make([]ChannelSummary, len(cfg.Channels)),
	}
	productIdx := make(map[string]int, len(cfg.Products))
	for i, p := range cfg.Products {
		productIdx[p] = i
		summary.Products[i].Product = p
	}
	channelIdx := make(map[string]int, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		channelIdx[ch] = i
		summary.Channels[i].Channel = ch
	}

	for _, s := range sales {
		pi, ok := productIdx[s.Product]
		if !ok {
			continue
		}
		revenue := decimal.NewFromFloat(s.Revenue)
		cost := decimal.NewFromFloat(cfg.UnitEcon[s.Product].UnitCost()).Mul(decimal.NewFromInt(int64(s.UnitsSold)))

		ps := &summary.Products[pi]
		ps.UnitsSold += s.UnitsSold
		ps.Revenue = ps.Revenue.Add(revenue)
		ps.ProductCost = ps.ProductCost.Add(cost)

		if ci, ok := channelIdx[s.Channel]; ok {
			cs := &summary.Channels[ci]
			cs.Revenue = cs.Revenue.Add(revenue)
			cs.ProductCost = cs.ProductCost.Add(cost)
		}

		summary.UnitsSold += s.UnitsSold
		summary.Revenue = summary.Revenue.Add(revenue)
	}

	days := make(map[time.Time]bool)
	closingTotals := make([]int, len(cfg.Products))
	closingRows := make([]int, len(cfg.Products))
	for _, inv := range inventory {
		d := civilDate(inv.Date)
		days[d] = true
		if summary.First.IsZero() || d.Before(summary.First) {
			summary.First = d
		}
		if d.After(summary.Last) {
			summary.Last = d
		}
		pi, ok := productIdx[inv.Product]
		if !ok {
			continue
		}
		ps := &summary.Products[pi]
		ps.LostDemand += inv.LostDemand
		if inv.Stockout {
			ps.StockoutDays++
		}
		closingTotals[pi] += inv.ClosingStock
		closingRows[pi]++
		summary.LostDemand += inv.LostDemand
	}
	summary.Days = len(days)
	for i := range summary.Products {
		ps := &summary.Products[i]
		ps.Profit = ps.Revenue.Sub(ps.ProductCost)
		if closingRows[i] > 0 {
			ps.AvgClosingStock = float64(closingTotals[i]) / float64(closingRows[i])
		}
	}

	roasSums := make([]float64, len(cfg.Channels))
	roasDays := make([]int, len(cfg.Channels))
	for _, m := range marketing {
		ci, ok := channelIdx[m.Channel]
		if !ok {
			continue
		}
		spend := decimal.NewFromFloat(m.Spend)
		cs := &summary.Channels[ci]
		cs.Spend = cs.Spend.Add(spend)
		cs.Conversions += m.Conversions
		summary.Spend = summary.Spend.Add(spend)
		if m.Spend > 0 {
			roasSums[ci] += m.Revenue / m.Spend
			roasDays[ci]++
		}
	}
	for i := range summary.Channels {
		cs := &summary.Channels[i]
		cs.NetProfit = cs.Revenue.Sub(cs.ProductCost).Sub(cs.Spend)
		if roasDays[i] > 0 {
			mean := roasSums[i] / float64(roasDays[i])
			cs.MeanROAS = &mean
		}
	}
	return summary
}
