package sim

import (
	"math"
	"sort"
)

// PartitionByWeight splits total into one non-negative integer per key,
// proportionally to weights, such that the parts sum to exactly total.
//
// Largest remainder: every key gets floor(total × w / Σw); the units left over
// go one each to the keys with the largest fractional parts, ties broken by
// position in keys. Negative or missing weights count as zero. When total ≤ 0
// or Σw ≤ 0 every part is zero.
//
// The result is index-aligned with keys. No randomness is consumed.
func PartitionByWeight(total int, keys []string, weights map[string]float64) []int {
	parts := make([]int, len(keys))
	if total <= 0 || len(keys) == 0 {
		return parts
	}
	sum := 0.0
	for _, k := range keys {
		if w := weights[k]; w > 0 {
			sum += w
		}
	}
	if sum <= 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return parts
	}

	fractions := make([]float64, len(keys))
	assigned := 0
	for i, k := range keys {
		w := weights[k]
		if w <= 0 {
			fractions[i] = -1 // never receives a leftover unit
			continue
		}
		quota := float64(total) * w / sum
		base := math.Floor(quota)
		parts[i] = int(base)
		fractions[i] = quota - base
		assigned += parts[i]
	}

	eligible := make([]int, 0, len(keys))
	for i := range keys {
		if fractions[i] >= 0 {
			eligible = append(eligible, i)
		}
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		return fractions[eligible[a]] > fractions[eligible[b]]
	})

	// leftover < len(eligible) in exact arithmetic; the modulo only absorbs
	// floating-point slack.
	for n, leftover := 0, total-assigned; leftover > 0; n, leftover = n+1, leftover-1 {
		parts[eligible[n%len(eligible)]]++
	}
	return parts
}

// allocationCell is a non-zero (region, channel) share of one product's sales.
type allocationCell struct {
	Region  string
	Channel string
	Units   int
}

// allocateUnits distributes sold units over regions, then over channels
// within each region. Zero cells are omitted. Cells come out in configured
// region-major, channel-minor order.
func allocateUnits(sold int, cfg *WorldConfig) []allocationCell {
	if sold <= 0 {
		return nil
	}
	cells := make([]allocationCell, 0, len(cfg.Regions)*len(cfg.Channels))
	regionUnits := PartitionByWeight(sold, cfg.Regions, cfg.RegionWeights)
	for i, region := range cfg.Regions {
		channelUnits := PartitionByWeight(regionUnits[i], cfg.Channels, cfg.ChannelWeights)
		for j, channel := range cfg.Channels {
			if channelUnits[j] == 0 {
				continue
			}
			cells = append(cells, allocationCell{Region: region, Channel: channel, Units: channelUnits[j]})
		}
	}
	return cells
}
