package sim

import (
	"fmt"
	"sort"
	"strings"
)

// Shock is a pure transform of a world configuration. It receives a private
// clone and returns the shocked value; the caller's config is never touched.
type Shock func(cfg *WorldConfig) *WorldConfig

// shocks is the registry of named scenario shocks.
var shocks = map[string]Shock{
	"recession-week":         recessionWeek,
	"viral-spike":            viralSpike,
	"marketing-death-spiral": marketingDeathSpiral,
}

// ShockNames returns the registered shock names, sorted.
func ShockNames() []string {
	names := make([]string, 0, len(shocks))
	for n := range shocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsValidShock returns true if name is a registered shock.
func IsValidShock(name string) bool {
	_, ok := shocks[name]
	return ok
}

// ApplyShock returns a shocked copy of cfg. The input is left unchanged.
func ApplyShock(name string, cfg *WorldConfig) (*WorldConfig, error) {
	fn, ok := shocks[name]
	if !ok {
		return nil, fmt.Errorf("unknown shock %q; valid: %s", name, strings.Join(ShockNames(), ", "))
	}
	return fn(cfg.Clone()), nil
}

// recessionWeek cuts base demand to 60%.
func recessionWeek(cfg *WorldConfig) *WorldConfig {
	for p, d := range cfg.BaseDailyDemand {
		cfg.BaseDailyDemand[p] = d * 0.6
	}
	return cfg
}

// viralSpike multiplies demand by 2.5 while halving production capacity, the
// classic stockout setup.
func viralSpike(cfg *WorldConfig) *WorldConfig {
	for p, d := range cfg.BaseDailyDemand {
		cfg.BaseDailyDemand[p] = d * 2.5
	}
	for p, r := range cfg.ProductionRange {
		cfg.ProductionRange[p] = IntRange{r.Min() / 2, r.Max() / 2}
	}
	return cfg
}

// marketingDeathSpiral makes every channel convert worse and cost more.
func marketingDeathSpiral(cfg *WorldConfig) *WorldConfig {
	for ch, b := range cfg.ChannelBehavior {
		cfg.ChannelBehavior[ch] = ChannelBehavior{
			CTR: b.CTR,
			CVR: Range{b.CVR.Min() * 0.6, b.CVR.Max() * 0.6},
			CPC: Range{b.CPC.Min() * 1.4, b.CPC.Max() * 1.4},
		}
	}
	return cfg
}
