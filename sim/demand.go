package sim

import "math/rand"

// generateDemand draws one noise factor per product, in configured product
// order, and returns the rounded raw demand.
//
//	demand = max(0, round(base_daily_demand × U[noise_min, noise_max]))
func generateDemand(rng *rand.Rand, cfg *WorldConfig) map[string]int {
	demand := make(map[string]int, len(cfg.Products))
	lo, hi := cfg.DemandNoise.Min(), cfg.DemandNoise.Max()
	for _, p := range cfg.Products {
		noise := uniform(rng, lo, hi)
		demand[p] = roundNonNegative(cfg.BaseDailyDemand[p] * noise)
	}
	return demand
}
