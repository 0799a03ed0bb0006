package sim

import "math/rand"

// runProduction draws each product's output for the day, in configured
// product order. Every product consumes exactly three draws (quantity,
// disruption roll, disruption factor) whatever the outcome, so a change of
// disruption probability never shifts later stages' draws.
func runProduction(rng *rand.Rand, cfg *WorldConfig) map[string]int {
	probability, maxFactor := cfg.disruption()
	produced := make(map[string]int, len(cfg.Products))
	for _, p := range cfg.Products {
		r := cfg.ProductionRange[p]
		qty := uniformInt(rng, r.Min(), r.Max())
		roll := rng.Float64()
		factor := uniform(rng, 0, maxFactor)
		if roll < probability {
			qty = int(float64(qty) * factor)
		}
		if qty < 0 {
			qty = 0
		}
		produced[p] = qty
	}
	return produced
}

// openingStock returns the stock a product starts the day with: the prior
// closing stock, or the configured starting stock when the product has none.
func openingStock(cfg *WorldConfig, stock StockState, product string) int {
	if s, ok := stock[product]; ok {
		return s
	}
	return cfg.StartingStock
}
