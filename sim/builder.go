package sim

import "math/rand"

// CompanyForm is the compact description of a company from which a full
// WorldConfig is derived. Parallel slices are index-aligned with their name
// lists.
type CompanyForm struct {
	Description    string    `yaml:"description,omitempty" json:"description,omitempty"`
	Products       []string  `yaml:"products" json:"products"`
	SellingPrices  []float64 `yaml:"selling_prices" json:"selling_prices"`
	BaseDemand     []float64 `yaml:"base_demand" json:"base_demand"`
	Regions        []string  `yaml:"regions" json:"regions"`
	RegionWeights  []float64 `yaml:"region_weights" json:"region_weights"`
	Channels       []string  `yaml:"channels" json:"channels"`
	ChannelWeights []float64 `yaml:"channel_weights" json:"channel_weights"`
	StartingStock  int       `yaml:"starting_stock" json:"starting_stock"`
	DemandNoise    Range     `yaml:"demand_noise" json:"demand_noise"`
}

// DefaultCompanyForm is the two-shake starter company.
func DefaultCompanyForm() CompanyForm {
	return CompanyForm{
		Products:       []string{"Vanilla Shake", "Chocolate Shake"},
		SellingPrices:  []float64{100, 100},
		BaseDemand:     []float64{100, 80},
		Regions:        []string{"North", "South", "East", "West"},
		RegionWeights:  []float64{0.2, 0.3, 0.4, 0.1},
		Channels:       []string{"Instagram", "Google", "Influencers"},
		ChannelWeights: []float64{0.5, 0.3, 0.2},
		StartingStock:  100,
		DemandNoise:    Range{0.8, 1.2},
	}
}

// Channel archetypes assigned by BuildWorldConfig.
var (
	heroChannel = ChannelBehavior{
		CTR: Range{0.03, 0.06},
		CVR: Range{0.12, 0.25},
		CPC: Range{0.3, 0.8},
	}
	trashChannel = ChannelBehavior{
		CTR: Range{0.005, 0.015},
		CVR: Range{0.01, 0.05},
		CPC: Range{1.5, 3.0},
	}
	averageChannel = ChannelBehavior{
		CTR: Range{0.01, 0.03},
		CVR: Range{0.05, 0.15},
		CPC: Range{0.6, 1.5},
	}
)

// Cost shares of selling price used to derive unit economics.
const (
	cogsShare      = 0.48
	packagingShare = 0.06
	logisticsShare = 0.08
)

// BuildWorldConfig derives a complete configuration from a form.
//
// Unit costs are fixed shares of price, truncated to whole currency units.
// Production capacity centres on demand × U[0.85, 1.05] with a ±10% band.
// With two or more channels one is drawn as the hero (cheap, high converting)
// and another as the trash channel; the rest are average.
func BuildWorldConfig(form CompanyForm, rng *rand.Rand) (*WorldConfig, error) {
	if len(form.SellingPrices) != len(form.Products) {
		return nil, configErrorf("selling_prices", "got %d values for %d products", len(form.SellingPrices), len(form.Products))
	}
	if len(form.BaseDemand) != len(form.Products) {
		return nil, configErrorf("base_demand", "got %d values for %d products", len(form.BaseDemand), len(form.Products))
	}
	if len(form.RegionWeights) != len(form.Regions) {
		return nil, configErrorf("region_weights", "got %d values for %d regions", len(form.RegionWeights), len(form.Regions))
	}
	if len(form.ChannelWeights) != len(form.Channels) {
		return nil, configErrorf("channel_weights", "got %d values for %d channels", len(form.ChannelWeights), len(form.Channels))
	}

	cfg := &WorldConfig{
		Description:     form.Description,
		Products:        append([]string(nil), form.Products...),
		Regions:         append([]string(nil), form.Regions...),
		Channels:        append([]string(nil), form.Channels...),
		UnitEcon:        make(map[string]UnitEconomics, len(form.Products)),
		BaseDailyDemand: make(map[string]float64, len(form.Products)),
		RegionWeights:   make(map[string]float64, len(form.Regions)),
		ChannelWeights:  make(map[string]float64, len(form.Channels)),
		ChannelBehavior: make(map[string]ChannelBehavior, len(form.Channels)),
		StartingStock:   form.StartingStock,
		ProductionRange: make(map[string]IntRange, len(form.Products)),
		DemandNoise:     append(Range(nil), form.DemandNoise...),
	}
	if len(cfg.DemandNoise) == 0 {
		cfg.DemandNoise = Range{0.8, 1.2}
	}

	for i, p := range form.Products {
		price := form.SellingPrices[i]
		cfg.UnitEcon[p] = UnitEconomics{
			SellingPrice:  price,
			COGS:          float64(int(price * cogsShare)),
			PackagingCost: float64(int(price * packagingShare)),
			LogisticsCost: float64(int(price * logisticsShare)),
		}
		demand := form.BaseDemand[i]
		cfg.BaseDailyDemand[p] = demand
		mean := demand * uniform(rng, 0.85, 1.05)
		cfg.ProductionRange[p] = IntRange{int(mean * 0.9), int(mean * 1.1)}
	}
	for i, r := range form.Regions {
		cfg.RegionWeights[r] = form.RegionWeights[i]
	}

	hero, trash := -1, -1
	if n := len(form.Channels); n >= 2 {
		hero = rng.Intn(n)
		trash = rng.Intn(n - 1)
		if trash >= hero {
			trash++
		}
	}
	for i, ch := range form.Channels {
		cfg.ChannelWeights[ch] = form.ChannelWeights[i]
		switch i {
		case hero:
			cfg.ChannelBehavior[ch] = cloneBehavior(heroChannel)
		case trash:
			cfg.ChannelBehavior[ch] = cloneBehavior(trashChannel)
		default:
			cfg.ChannelBehavior[ch] = cloneBehavior(averageChannel)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cloneBehavior(b ChannelBehavior) ChannelBehavior {
	return ChannelBehavior{
		CTR: append(Range(nil), b.CTR...),
		CVR: append(Range(nil), b.CVR...),
		CPC: append(Range(nil), b.CPC...),
	}
}
