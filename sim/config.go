package sim

import (
	"math"
	"sort"
)

// Supply disruption defaults: on 18% of product-days production collapses to
// a fraction in [0, 0.3) of the drawn quantity.
const (
	DefaultDisruptionProbability = 0.18
	DefaultDisruptionMaxFactor   = 0.3
)

// Range is an inclusive-exclusive [min, max) parameter range. Configuration
// files write it as a two-element list.
type Range []float64

// Min returns the lower bound (0 for a malformed range).
func (r Range) Min() float64 {
	if len(r) < 1 {
		return 0
	}
	return r[0]
}

// Max returns the upper bound (0 for a malformed range).
func (r Range) Max() float64 {
	if len(r) < 2 {
		return 0
	}
	return r[1]
}

// IntRange is an inclusive [min, max] integer range.
type IntRange []int

// Min returns the lower bound (0 for a malformed range).
func (r IntRange) Min() int {
	if len(r) < 1 {
		return 0
	}
	return r[0]
}

// Max returns the upper bound (0 for a malformed range).
func (r IntRange) Max() int {
	if len(r) < 2 {
		return 0
	}
	return r[1]
}

// UnitEconomics holds the per-unit price and cost components of one product.
type UnitEconomics struct {
	SellingPrice  float64 `yaml:"selling_price" json:"selling_price"`
	COGS          float64 `yaml:"cogs" json:"cogs"`
	PackagingCost float64 `yaml:"packaging_cost" json:"packaging_cost"`
	LogisticsCost float64 `yaml:"logistics_cost" json:"logistics_cost"`
}

// GrossMargin is selling price minus COGS.
func (u UnitEconomics) GrossMargin() float64 { return u.SellingPrice - u.COGS }

// UnitCost is COGS plus packaging plus logistics.
func (u UnitEconomics) UnitCost() float64 { return u.COGS + u.PackagingCost + u.LogisticsCost }

// ChannelBehavior holds the ranges from which a channel's daily CTR, CVR and
// CPC are drawn.
type ChannelBehavior struct {
	CTR Range `yaml:"ctr" json:"ctr"`
	CVR Range `yaml:"cvr" json:"cvr"`
	CPC Range `yaml:"cpc" json:"cpc"`
}

// SupplyDisruption overrides the partial-supply-failure model. When absent the
// defaults (0.18, 0.3) apply.
type SupplyDisruption struct {
	Probability float64 `yaml:"probability" json:"probability"`
	MaxFactor   float64 `yaml:"max_factor" json:"max_factor"`
}

// WorldConfig is the immutable parameter set of one simulated company.
//
// The engine never mutates a WorldConfig. Scenario shocks produce a new value
// via Clone (see scenarios.go).
type WorldConfig struct {
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Products    []string `yaml:"products" json:"products"`
	Regions     []string `yaml:"regions" json:"regions"`
	Channels    []string `yaml:"channels" json:"channels"`

	UnitEcon        map[string]UnitEconomics   `yaml:"unit_econ" json:"unit_econ"`
	BaseDailyDemand map[string]float64         `yaml:"base_daily_demand" json:"base_daily_demand"`
	RegionWeights   map[string]float64         `yaml:"region_weights" json:"region_weights"`
	ChannelWeights  map[string]float64         `yaml:"channel_weights" json:"channel_weights"`
	ChannelBehavior map[string]ChannelBehavior `yaml:"channel_behavior" json:"channel_behavior"`

	StartingStock   int                 `yaml:"starting_stock" json:"starting_stock"`
	ProductionRange map[string]IntRange `yaml:"production_range" json:"production_range"`
	DemandNoise     Range               `yaml:"demand_noise" json:"demand_noise"`

	SupplyDisruption *SupplyDisruption `yaml:"supply_disruption,omitempty" json:"supply_disruption,omitempty"`
}

// disruption returns the effective (probability, max factor) pair.
func (c *WorldConfig) disruption() (float64, float64) {
	if c.SupplyDisruption == nil {
		return DefaultDisruptionProbability, DefaultDisruptionMaxFactor
	}
	return c.SupplyDisruption.Probability, c.SupplyDisruption.MaxFactor
}

// Validate checks the structural consistency of the configuration: every
// per-entity map must have exactly the key set of its entity list, and every
// numeric parameter must be finite and in range. The first violation is
// returned as a *ConfigurationError.
func (c *WorldConfig) Validate() error {
	if c == nil {
		return &ConfigurationError{Reason: "config is nil"}
	}
	if err := validateNames("products", c.Products); err != nil {
		return err
	}
	if err := validateNames("regions", c.Regions); err != nil {
		return err
	}
	if err := validateNames("channels", c.Channels); err != nil {
		return err
	}

	if err := checkKeySet("unit_econ", c.Products, c.UnitEcon); err != nil {
		return err
	}
	for _, p := range c.Products {
		u := c.UnitEcon[p]
		prefix := "unit_econ." + p
		for _, f := range []struct {
			name string
			val  float64
		}{
			{"selling_price", u.SellingPrice},
			{"cogs", u.COGS},
			{"packaging_cost", u.PackagingCost},
			{"logistics_cost", u.LogisticsCost},
		} {
			if err := validateNonNegative(prefix+"."+f.name, f.val); err != nil {
				return err
			}
		}
	}

	if err := checkKeySet("base_daily_demand", c.Products, c.BaseDailyDemand); err != nil {
		return err
	}
	for _, p := range c.Products {
		if err := validateNonNegative("base_daily_demand."+p, c.BaseDailyDemand[p]); err != nil {
			return err
		}
	}

	if err := checkKeySet("region_weights", c.Regions, c.RegionWeights); err != nil {
		return err
	}
	for _, r := range c.Regions {
		if err := validateNonNegative("region_weights."+r, c.RegionWeights[r]); err != nil {
			return err
		}
	}

	if err := checkKeySet("channel_weights", c.Channels, c.ChannelWeights); err != nil {
		return err
	}
	for _, ch := range c.Channels {
		if err := validateNonNegative("channel_weights."+ch, c.ChannelWeights[ch]); err != nil {
			return err
		}
	}

	if err := checkKeySet("channel_behavior", c.Channels, c.ChannelBehavior); err != nil {
		return err
	}
	for _, ch := range c.Channels {
		b := c.ChannelBehavior[ch]
		prefix := "channel_behavior." + ch
		if err := validateRange(prefix+".ctr", b.CTR); err != nil {
			return err
		}
		if err := validateRange(prefix+".cvr", b.CVR); err != nil {
			return err
		}
		if err := validateRange(prefix+".cpc", b.CPC); err != nil {
			return err
		}
	}

	if c.StartingStock < 0 {
		return configErrorf("starting_stock", "must be non-negative, got %d", c.StartingStock)
	}

	if err := checkKeySet("production_range", c.Products, c.ProductionRange); err != nil {
		return err
	}
	for _, p := range c.Products {
		r := c.ProductionRange[p]
		field := "production_range." + p
		if len(r) != 2 {
			return configErrorf(field, "must have exactly 2 elements [min, max], got %d", len(r))
		}
		if r[0] < 0 || r[1] < r[0] {
			return configErrorf(field, "must satisfy 0 <= min <= max, got [%d, %d]", r[0], r[1])
		}
	}

	if err := validateRange("demand_noise", c.DemandNoise); err != nil {
		return err
	}

	if d := c.SupplyDisruption; d != nil {
		if math.IsNaN(d.Probability) || d.Probability < 0 || d.Probability > 1 {
			return configErrorf("supply_disruption.probability", "must be in [0, 1], got %f", d.Probability)
		}
		if math.IsNaN(d.MaxFactor) || d.MaxFactor < 0 || d.MaxFactor > 1 {
			return configErrorf("supply_disruption.max_factor", "must be in [0, 1], got %f", d.MaxFactor)
		}
	}
	return nil
}

func validateNames(field string, names []string) error {
	if len(names) == 0 {
		return configErrorf(field, "at least one entry required")
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return configErrorf(field, "entry %d is empty", i)
		}
		if seen[n] {
			return configErrorf(field, "duplicate entry %q", n)
		}
		seen[n] = true
	}
	return nil
}

// checkKeySet verifies that m has exactly the keys listed in want.
func checkKeySet[V any](field string, want []string, m map[string]V) error {
	for _, k := range want {
		if _, ok := m[k]; !ok {
			return configErrorf(field, "missing entry for %q", k)
		}
	}
	if len(m) == len(want) {
		return nil
	}
	wanted := make(map[string]bool, len(want))
	for _, k := range want {
		wanted[k] = true
	}
	extra := make([]string, 0)
	for k := range m {
		if !wanted[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return configErrorf(field, "unknown entries %q", extra)
}

func validateNonNegative(field string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return configErrorf(field, "must be a finite number, got %f", val)
	}
	if val < 0 {
		return configErrorf(field, "must be non-negative, got %f", val)
	}
	return nil
}

func validateRange(field string, r Range) error {
	if len(r) != 2 {
		return configErrorf(field, "must have exactly 2 elements [min, max], got %d", len(r))
	}
	for _, v := range r {
		if err := validateNonNegative(field, v); err != nil {
			return err
		}
	}
	if r[1] < r[0] {
		return configErrorf(field, "min %f exceeds max %f", r[0], r[1])
	}
	return nil
}

// Clone returns a deep copy. Shocks transform the copy, never the original.
func (c *WorldConfig) Clone() *WorldConfig {
	if c == nil {
		return nil
	}
	out := &WorldConfig{
		Description:     c.Description,
		Products:        append([]string(nil), c.Products...),
		Regions:         append([]string(nil), c.Regions...),
		Channels:        append([]string(nil), c.Channels...),
		UnitEcon:        make(map[string]UnitEconomics, len(c.UnitEcon)),
		BaseDailyDemand: make(map[string]float64, len(c.BaseDailyDemand)),
		RegionWeights:   make(map[string]float64, len(c.RegionWeights)),
		ChannelWeights:  make(map[string]float64, len(c.ChannelWeights)),
		ChannelBehavior: make(map[string]ChannelBehavior, len(c.ChannelBehavior)),
		StartingStock:   c.StartingStock,
		ProductionRange: make(map[string]IntRange, len(c.ProductionRange)),
		DemandNoise:     append(Range(nil), c.DemandNoise...),
	}
	for k, v := range c.UnitEcon {
		out.UnitEcon[k] = v
	}
	for k, v := range c.BaseDailyDemand {
		out.BaseDailyDemand[k] = v
	}
	for k, v := range c.RegionWeights {
		out.RegionWeights[k] = v
	}
	for k, v := range c.ChannelWeights {
		out.ChannelWeights[k] = v
	}
	for k, v := range c.ChannelBehavior {
		out.ChannelBehavior[k] = ChannelBehavior{
			CTR: append(Range(nil), v.CTR...),
			CVR: append(Range(nil), v.CVR...),
			CPC: append(Range(nil), v.CPC...),
		}
	}
	for k, v := range c.ProductionRange {
		out.ProductionRange[k] = append(IntRange(nil), v...)
	}
	if c.SupplyDisruption != nil {
		d := *c.SupplyDisruption
		out.SupplyDisruption = &d
	}
	return out
}

// UnitEconomicsTable returns one row per product in configured order. The
// table is static for the life of a company.
func (c *WorldConfig) UnitEconomicsTable() []UnitEconomicsRow {
	rows := make([]UnitEconomicsRow, 0, len(c.Products))
	for _, p := range c.Products {
		u := c.UnitEcon[p]
		rows = append(rows, UnitEconomicsRow{
			Product:       p,
			SellingPrice:  u.SellingPrice,
			COGS:          u.COGS,
			GrossMargin:   u.GrossMargin(),
			PackagingCost: u.PackagingCost,
			LogisticsCost: u.LogisticsCost,
		})
	}
	return rows
}
