package sim

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// burnProfiles is the fixed share of same-day channel revenue a channel
// spends on acquisition. Channels not listed use defaultBurnProfile.
var burnProfiles = map[string]Range{
	"Instagram":   {0.18, 0.28},
	"Google":      {0.30, 0.55},
	"Influencers": {0.28, 0.60},
}

var defaultBurnProfile = Range{0.25, 0.45}

// BurnProfile returns the spend-to-revenue range used for a channel.
func BurnProfile(channel string) Range {
	if r, ok := burnProfiles[channel]; ok {
		return r
	}
	return defaultBurnProfile
}

// channelRevenue sums the revenue of a day's sales rows per channel.
func channelRevenue(sales []SalesRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, s := range sales {
		out[s.Channel] = out[s.Channel].Add(decimal.NewFromFloat(s.Revenue))
	}
	return out
}

// simulateMarketing derives one marketing row per configured channel from
// the day's realized sales. Spend follows revenue; the funnel metrics are then
// backed out of spend using the channel's drawn CTR, CVR and CPC.
//
// Draw order per channel: burn factor, ctr, cvr, cpc. All four are consumed
// even for a channel with no revenue.
func simulateMarketing(rng *rand.Rand, date time.Time, cfg *WorldConfig, sales []SalesRecord) []MarketingRecord {
	revenue := channelRevenue(sales)
	rows := make([]MarketingRecord, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		burn := BurnProfile(ch)
		behavior := cfg.ChannelBehavior[ch]

		factor := uniform(rng, burn.Min(), burn.Max())
		ctr := uniform(rng, behavior.CTR.Min(), behavior.CTR.Max())
		cvr := uniform(rng, behavior.CVR.Min(), behavior.CVR.Max())
		cpc := uniform(rng, behavior.CPC.Min(), behavior.CPC.Max())

		rev := revenue[ch]
		spend := rev.Mul(decimal.NewFromFloat(factor)).Round(2)
		if spend.IsNegative() {
			spend = decimal.Zero
		}
		spendF := spend.InexactFloat64()

		clicks := 0
		if cpc > 0 {
			clicks = floorNonNegative(spendF / cpc)
		}
		impressions := 0
		if ctr > 0 {
			impressions = floorNonNegative(float64(clicks) / ctr)
		}
		conversions := floorNonNegative(float64(clicks) * cvr)

		rows = append(rows, MarketingRecord{
			Date:        date,
			Channel:     ch,
			Spend:       spendF,
			Impressions: impressions,
			Clicks:      clicks,
			Conversions: conversions,
			Revenue:     rev.InexactFloat64(),
		})
	}
	return rows
}
