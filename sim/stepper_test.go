package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepDay_ScenarioA_NoStockout(t *testing.T) {
	// GIVEN one product, opening 100, production pinned at 50, demand pinned at 80
	cfg := deterministicConfig(100, 50, 80)
	require.NoError(t, cfg.Validate())
	date := mustDate(t, "2024-01-01")

	// WHEN stepping day 1
	day := StepDay(date, StockState{"Widget": 100}, NewSimulationKey(1).Stream(), cfg)

	// THEN the ledger row matches the hand computation
	require.Len(t, day.Inventory, 1)
	inv := day.Inventory[0]
	assert.Equal(t, 100, inv.OpeningStock)
	assert.Equal(t, 50, inv.UnitsProduced)
	assert.Equal(t, 80, inv.UnitsDispatched)
	assert.Equal(t, 70, inv.ClosingStock)
	assert.Equal(t, 0, inv.LostDemand)
	assert.False(t, inv.Stockout)

	// THEN all 80 units land in the single (region, channel) cell
	require.Len(t, day.Sales, 1)
	assert.Equal(t, 80, day.Sales[0].UnitsSold)
	assert.Equal(t, 800.0, day.Sales[0].Revenue)
	assert.Equal(t, StockState{"Widget": 70}, day.Stock)
}

func TestStepDay_ScenarioB_Stockout(t *testing.T) {
	// GIVEN nothing on hand and nothing produced
	cfg := deterministicConfig(0, 0, 80)
	require.NoError(t, cfg.Validate())

	// WHEN stepping day 1
	day := StepDay(mustDate(t, "2024-01-01"), StockState{"Widget": 0}, NewSimulationKey(1).Stream(), cfg)

	// THEN all demand is lost and the product is flagged out of stock
	require.Len(t, day.Inventory, 1)
	inv := day.Inventory[0]
	assert.Equal(t, 0, inv.OpeningStock)
	assert.Equal(t, 0, inv.UnitsProduced)
	assert.Equal(t, 0, inv.UnitsDispatched)
	assert.Equal(t, 0, inv.ClosingStock)
	assert.Equal(t, 80, inv.LostDemand)
	assert.True(t, inv.Stockout)

	// THEN no sales rows exist, and marketing reports zero spend
	assert.Empty(t, day.Sales)
	require.Len(t, day.Marketing, 1)
	assert.Equal(t, 0.0, day.Marketing[0].Spend)
	assert.Equal(t, 0, day.Marketing[0].Clicks)
	assert.Equal(t, 0, day.Marketing[0].Conversions)
}

func TestStepDay_PartialStock_LostDemandIsShortfall(t *testing.T) {
	cfg := deterministicConfig(10, 5, 40)

	day := StepDay(mustDate(t, "2024-01-01"), StockState{"Widget": 10}, NewSimulationKey(3).Stream(), cfg)

	inv := day.Inventory[0]
	assert.Equal(t, 15, inv.UnitsDispatched)
	assert.Equal(t, 25, inv.LostDemand)
	assert.Equal(t, 0, inv.ClosingStock)
	assert.True(t, inv.Stockout)
}

func TestStepDay_MissingStock_UsesStartingStock(t *testing.T) {
	cfg := deterministicConfig(30, 0, 10)

	day := StepDay(mustDate(t, "2024-01-01"), StockState{}, NewSimulationKey(1).Stream(), cfg)

	assert.Equal(t, 30, day.Inventory[0].OpeningStock)
	assert.Equal(t, 20, day.Inventory[0].ClosingStock)
}

func TestStepDay_DoesNotMutateInputs(t *testing.T) {
	cfg := testConfig()
	before := cfg.Clone()
	stock := StockState{"Vanilla Shake": 40, "Chocolate Shake": 7}

	StepDay(mustDate(t, "2024-03-01"), stock, NewSimulationKey(9).Stream(), cfg)

	assert.Equal(t, StockState{"Vanilla Shake": 40, "Chocolate Shake": 7}, stock)
	assert.Equal(t, before, cfg)
}

func TestStepDay_InvariantsHoldEveryDay(t *testing.T) {
	// GIVEN the default disruption model and a mid-sized company
	cfg := testConfig()
	start := mustDate(t, "2024-01-01")
	end := mustDate(t, "2024-06-30")

	// WHEN running half a year
	var days int
	_, err := RunRange(cfg, start, end, 42, nil, func(day *DayResult) error {
		days++
		// THEN conservation, stockout consistency and allocation conservation hold
		return VerifyDay(day)
	})
	require.NoError(t, err)
	assert.Equal(t, 182, days)
}

func TestStepDay_CACUniformAcrossChannelDay(t *testing.T) {
	cfg := testConfig()
	day := StepDay(mustDate(t, "2024-01-01"), nil, NewSimulationKey(5).Stream(), cfg)

	byChannel := make(map[string]MarketingRecord)
	for _, m := range day.Marketing {
		byChannel[m.Channel] = m
	}
	for _, s := range day.Sales {
		m := byChannel[s.Channel]
		if m.Conversions == 0 {
			assert.Nil(t, s.CAC, "channel %s has no conversions", s.Channel)
			continue
		}
		require.NotNil(t, s.CAC)
		assert.Equal(t, m.Spend/float64(m.Conversions), *s.CAC)
	}
}

func TestStepDay_MarketingRowPerChannel(t *testing.T) {
	cfg := testConfig()
	day := StepDay(mustDate(t, "2024-01-01"), nil, NewSimulationKey(5).Stream(), cfg)

	require.Len(t, day.Marketing, len(cfg.Channels))
	revenue := make(map[string]float64)
	for _, s := range day.Sales {
		revenue[s.Channel] += s.Revenue
	}
	for i, m := range day.Marketing {
		assert.Equal(t, cfg.Channels[i], m.Channel)
		assert.InDelta(t, revenue[m.Channel], m.Revenue, 1e-6)

		// spend is a whole number of cents within the channel's burn profile
		cents := m.Spend * 100
		assert.InDelta(t, math.Round(cents), cents, 1e-6)
		burn := BurnProfile(m.Channel)
		assert.GreaterOrEqual(t, m.Spend, math.Floor(m.Revenue*burn.Min()*100)/100)
		assert.LessOrEqual(t, m.Spend, math.Ceil(m.Revenue*burn.Max()*100)/100)
		assert.GreaterOrEqual(t, m.Clicks, m.Conversions)
	}
}

func TestStepDay_SameSeedSameDay(t *testing.T) {
	cfg := testConfig()
	date := mustDate(t, "2024-05-05")
	stock := StockState{"Vanilla Shake": 12, "Chocolate Shake": 0}

	a := StepDay(date, stock, NewSimulationKey(77).Stream(), cfg)
	b := StepDay(date, stock, NewSimulationKey(77).Stream(), cfg)

	assert.Equal(t, a, b)
}

func TestMarketing_ZeroCPCAndCTR_NoClicksOrImpressions(t *testing.T) {
	// GIVEN a channel whose cpc and ctr ranges are pinned at zero
	cfg := deterministicConfig(100, 50, 80)
	cfg.ChannelBehavior["Direct"] = ChannelBehavior{CTR: Range{0, 0}, CVR: Range{0.1, 0.1}, CPC: Range{0, 0}}
	require.NoError(t, cfg.Validate())

	// WHEN stepping a day with revenue
	day := StepDay(mustDate(t, "2024-01-01"), nil, NewSimulationKey(1).Stream(), cfg)

	// THEN spend is positive but no clicks, impressions or conversions are derived
	m := day.Marketing[0]
	assert.Greater(t, m.Spend, 0.0)
	assert.Equal(t, 0, m.Clicks)
	assert.Equal(t, 0, m.Impressions)
	assert.Equal(t, 0, m.Conversions)
	assert.Nil(t, day.Sales[0].CAC)
}

func TestProduction_DisruptionCertain_CapsOutput(t *testing.T) {
	// GIVEN disruption on every day with factor below 0.3
	cfg := deterministicConfig(0, 100, 0)
	cfg.SupplyDisruption = &SupplyDisruption{Probability: 1, MaxFactor: 0.3}

	// WHEN producing for many days
	rng := NewSimulationKey(11).Stream()
	for i := 0; i < 200; i++ {
		produced := runProduction(rng, cfg)["Widget"]
		// THEN output never reaches 30% of capacity
		assert.GreaterOrEqual(t, produced, 0)
		assert.Less(t, produced, 30)
	}
}

func TestProduction_DisruptionProbability_DoesNotShiftStream(t *testing.T) {
	// GIVEN two configs differing only in disruption probability
	on := deterministicConfig(0, 100, 0)
	on.SupplyDisruption = &SupplyDisruption{Probability: 1, MaxFactor: 0.3}
	off := deterministicConfig(0, 100, 0)

	rngOn := NewSimulationKey(5).Stream()
	rngOff := NewSimulationKey(5).Stream()
	runProduction(rngOn, on)
	runProduction(rngOff, off)

	// THEN both streams are at the same position afterwards
	assert.Equal(t, rngOn.Int63(), rngOff.Int63())
}

func TestDemand_RoundsAndClampsAtZero(t *testing.T) {
	cfg := deterministicConfig(0, 0, 7.5)

	demand := generateDemand(NewSimulationKey(1).Stream(), cfg)

	// math.Round rounds half away from zero
	assert.Equal(t, 8, demand["Widget"])
}

func TestStepDay_ZeroTotalAllocationWeight_UnplacedUnitsAreLost(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *WorldConfig)
	}{
		{"regions", func(cfg *WorldConfig) { cfg.RegionWeights["Central"] = 0 }},
		{"channels", func(cfg *WorldConfig) { cfg.ChannelWeights["Direct"] = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN enough stock for demand but no weight to allocate over
			cfg := deterministicConfig(100, 50, 80)
			tt.mutate(cfg)
			require.NoError(t, cfg.Validate())

			// WHEN stepping a day
			day := StepDay(mustDate(t, "2024-01-01"), StockState{"Widget": 100}, NewSimulationKey(1).Stream(), cfg)

			// THEN nothing is dispatched, stock is kept, and all demand is lost
			require.Len(t, day.Inventory, 1)
			inv := day.Inventory[0]
			assert.Empty(t, day.Sales)
			assert.Equal(t, 0, inv.UnitsDispatched)
			assert.Equal(t, 150, inv.ClosingStock)
			assert.Equal(t, 80, inv.LostDemand)
			assert.Equal(t, 80, inv.UnitsDispatched+inv.LostDemand)
			assert.NoError(t, VerifyDay(day))
		})
	}
}

func TestRunRange_ZeroTotalRegionWeight_LedgerHoldsEveryDay(t *testing.T) {
	cfg := deterministicConfig(10, 50, 80)
	cfg.RegionWeights["Central"] = 0

	days := 0
	stock, err := RunRange(cfg, mustDate(t, "2024-01-01"), mustDate(t, "2024-01-05"), 7, nil, func(day *DayResult) error {
		days++
		require.NoError(t, VerifyDay(day))
		assert.Equal(t, 80, day.Inventory[0].LostDemand)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, days)
	assert.Equal(t, 10+5*50, stock["Widget"])
}
