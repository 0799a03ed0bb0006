package sim

import (
	"testing"
	"time"
)

// testConfig is a small three-region, three-channel company with the default
// supply disruption model.
func testConfig() *WorldConfig {
	return &WorldConfig{
		Products: []string{"Vanilla Shake", "Chocolate Shake"},
		Regions:  []string{"North", "South", "East"},
		Channels: []string{"Instagram", "Google", "Influencers"},
		UnitEcon: map[string]UnitEconomics{
			"Vanilla Shake":   {SellingPrice: 100, COGS: 48, PackagingCost: 6, LogisticsCost: 8},
			"Chocolate Shake": {SellingPrice: 120, COGS: 57, PackagingCost: 7, LogisticsCost: 9},
		},
		BaseDailyDemand: map[string]float64{"Vanilla Shake": 100, "Chocolate Shake": 80},
		RegionWeights:   map[string]float64{"North": 0.2, "South": 0.3, "East": 0.5},
		ChannelWeights:  map[string]float64{"Instagram": 0.5, "Google": 0.3, "Influencers": 0.2},
		ChannelBehavior: map[string]ChannelBehavior{
			"Instagram":   {CTR: Range{0.03, 0.06}, CVR: Range{0.12, 0.25}, CPC: Range{0.3, 0.8}},
			"Google":      {CTR: Range{0.01, 0.03}, CVR: Range{0.05, 0.15}, CPC: Range{0.6, 1.5}},
			"Influencers": {CTR: Range{0.005, 0.015}, CVR: Range{0.01, 0.05}, CPC: Range{1.5, 3.0}},
		},
		StartingStock: 100,
		ProductionRange: map[string]IntRange{
			"Vanilla Shake":   {85, 105},
			"Chocolate Shake": {70, 85},
		},
		DemandNoise: Range{0.8, 1.2},
	}
}

// deterministicConfig is a one-product, one-region, one-channel company with
// every stochastic element pinned.
func deterministicConfig(startingStock, produced int, demand float64) *WorldConfig {
	return &WorldConfig{
		Products: []string{"Widget"},
		Regions:  []string{"Central"},
		Channels: []string{"Direct"},
		UnitEcon: map[string]UnitEconomics{
			"Widget": {SellingPrice: 10, COGS: 4, PackagingCost: 1, LogisticsCost: 1},
		},
		BaseDailyDemand: map[string]float64{"Widget": demand},
		RegionWeights:   map[string]float64{"Central": 1.0},
		ChannelWeights:  map[string]float64{"Direct": 1.0},
		ChannelBehavior: map[string]ChannelBehavior{
			"Direct": {CTR: Range{0.02, 0.02}, CVR: Range{0.1, 0.1}, CPC: Range{1, 1}},
		},
		StartingStock:    startingStock,
		ProductionRange:  map[string]IntRange{"Widget": {produced, produced}},
		DemandNoise:      Range{1, 1},
		SupplyDisruption: &SupplyDisruption{Probability: 0, MaxFactor: 0.3},
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}
