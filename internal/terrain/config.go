package terrain

import (
	"fmt"
	"math"
	"reflect"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/faults"
)

// Mode selects how rule boundaries are treated.
type Mode string

const (
	Crisp Mode = "crisp"
	Fuzzy Mode = "fuzzy"
)

// Thresholds are the cut points of the default rule set. The same struct
// holds the fuzzy band half-widths, one per threshold.
type Thresholds struct {
	MountainElevation   float64 `yaml:"mountain_elevation" json:"mountain_elevation"`
	HillElevation       float64 `yaml:"hill_elevation" json:"hill_elevation"`
	HillSlope           float64 `yaml:"hill_slope" json:"hill_slope"`
	LowlandElevation    float64 `yaml:"lowland_elevation" json:"lowland_elevation"`
	WaterElevation      float64 `yaml:"water_elevation" json:"water_elevation"`
	SwampHumidity       float64 `yaml:"swamp_humidity" json:"swamp_humidity"`
	SwampPrecipitation  float64 `yaml:"swamp_precipitation" json:"swamp_precipitation"`
	ForestPrecipitation float64 `yaml:"forest_precipitation" json:"forest_precipitation"`
	ForestVegetation    float64 `yaml:"forest_vegetation" json:"forest_vegetation"`
	DesertPrecipitation float64 `yaml:"desert_precipitation" json:"desert_precipitation"`
	DesertHumidity      float64 `yaml:"desert_humidity" json:"desert_humidity"`
	WaterHumidity       float64 `yaml:"water_humidity" json:"water_humidity"`
}

// DefaultThresholds returns the stock cut points. Elevation in meters,
// precipitation in millimeters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MountainElevation:   2000,
		HillElevation:       500,
		HillSlope:           0.3,
		LowlandElevation:    100,
		WaterElevation:      20,
		SwampHumidity:       0.7,
		SwampPrecipitation:  150,
		ForestPrecipitation: 50,
		ForestVegetation:    0.5,
		DesertPrecipitation: 25,
		DesertHumidity:      0.2,
		WaterHumidity:       0.9,
	}
}

// DefaultBands returns the stock fuzzy half-widths.
func DefaultBands() Thresholds {
	return Thresholds{
		MountainElevation:   50,
		HillElevation:       25,
		HillSlope:           0.05,
		LowlandElevation:    10,
		WaterElevation:      5,
		SwampHumidity:       0.05,
		SwampPrecipitation:  10,
		ForestPrecipitation: 5,
		ForestVegetation:    0.05,
		DesertPrecipitation: 5,
		DesertHumidity:      0.05,
		WaterHumidity:       0.05,
	}
}

// Proxy derives a missing attribute from known ones.
type Proxy struct {
	Expr     string   `yaml:"expr" json:"expr"`
	Requires []string `yaml:"requires" json:"requires"`
}

// Config is the classifier configuration. When Rules is empty the default
// rule set is built from Thresholds and Bands.
type Config struct {
	Mode       Mode             `yaml:"mode" json:"mode"`
	Thresholds Thresholds       `yaml:"thresholds" json:"thresholds"`
	Bands      Thresholds       `yaml:"bands" json:"bands"`
	Rules      []Rule           `yaml:"rules,omitempty" json:"rules,omitempty"`
	Proxies    map[string]Proxy `yaml:"proxies,omitempty" json:"proxies,omitempty"`
	// Smooth replaces isolated labels with their neighbors' majority.
	Smooth bool `yaml:"smooth" json:"smooth"`
}

// DefaultConfig is crisp classification with the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Mode:       Crisp,
		Thresholds: DefaultThresholds(),
		Bands:      DefaultBands(),
	}
}

// DefaultRules builds the stock rule order:
// mountains, hills, swamp, forest, desert, water, open.
func DefaultRules(t, b Thresholds) []Rule {
	return []Rule{
		{
			Name: "mountains", Label: Mountains, Priority: 1,
			All: []Condition{above(environment.Elevation, t.MountainElevation, b.MountainElevation)},
		},
		{
			Name: "hills", Label: Hills, Priority: 2,
			All: []Condition{
				above(environment.Elevation, t.HillElevation, b.HillElevation),
				above(environment.Slope, t.HillSlope, b.HillSlope),
			},
		},
		{
			Name: "swamp", Label: Swamp, Priority: 3,
			All: []Condition{
				above(environment.Elevation, t.WaterElevation, b.WaterElevation),
				below(environment.Elevation, t.LowlandElevation, b.LowlandElevation),
			},
			Any: []Condition{
				above(environment.Humidity, t.SwampHumidity, b.SwampHumidity),
				above(environment.Precipitation, t.SwampPrecipitation, b.SwampPrecipitation),
			},
		},
		{
			Name: "forest", Label: Forest, Priority: 4,
			All: []Condition{
				above(environment.Precipitation, t.ForestPrecipitation, b.ForestPrecipitation),
				above(environment.Vegetation, t.ForestVegetation, b.ForestVegetation),
			},
		},
		{
			Name: "desert", Label: Desert, Priority: 5,
			All: []Condition{
				below(environment.Precipitation, t.DesertPrecipitation, b.DesertPrecipitation),
				below(environment.Humidity, t.DesertHumidity, b.DesertHumidity),
			},
		},
		{
			Name: "water", Label: Water, Priority: 6,
			All: []Condition{
				below(environment.Elevation, t.WaterElevation, b.WaterElevation),
				above(environment.Humidity, t.WaterHumidity, b.WaterHumidity),
			},
		},
		{Name: "open", Label: Open, Priority: 7},
	}
}

func above(attr string, t, band float64) Condition {
	return Condition{Attribute: attr, Op: Above, Threshold: t, Band: band}
}

func below(attr string, t, band float64) Condition {
	return Condition{Attribute: attr, Op: Below, Threshold: t, Band: band}
}

// RuleSet returns the effective rules in evaluation order.
func (c Config) RuleSet() []Rule {
	if len(c.Rules) == 0 {
		return DefaultRules(c.Thresholds, c.Bands)
	}
	rules := make([]Rule, len(c.Rules))
	copy(rules, c.Rules)
	sortRules(rules)
	return rules
}

// Validate checks the configuration without compiling expressions.
func (c Config) Validate() error {
	switch c.Mode {
	case Crisp, Fuzzy:
	default:
		return faults.Config("terrain.mode", "must be %q or %q, got %q", Crisp, Fuzzy, c.Mode)
	}
	if err := checkFinite("terrain.thresholds", c.Thresholds, false); err != nil {
		return err
	}
	if err := checkFinite("terrain.bands", c.Bands, true); err != nil {
		return err
	}

	rules := c.RuleSet()
	if len(rules) == 0 {
		return faults.Config("terrain.rules", "at least one rule is required")
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return faults.Config("terrain.rules", "duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
	}

	for attr, p := range c.Proxies {
		field := "terrain.proxies." + attr
		if !environment.KnownAttribute(attr) {
			return faults.Config(field, "unknown attribute")
		}
		if p.Expr == "" {
			return faults.Config(field, "expr is required")
		}
		for _, req := range p.Requires {
			if !environment.KnownAttribute(req) {
				return faults.Config(field, "requires unknown attribute %q", req)
			}
			if req == attr {
				return faults.Config(field, "cannot require itself")
			}
		}
	}
	return nil
}

// checkFinite walks the float fields of a Thresholds value.
func checkFinite(prefix string, t Thresholds, nonNegative bool) error {
	v := reflect.ValueOf(t)
	typ := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i).Float()
		name := fmt.Sprintf("%s.%s", prefix, typ.Field(i).Tag.Get("yaml"))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return faults.Config(name, "must be finite")
		}
		if nonNegative && f < 0 {
			return faults.Config(name, "must not be negative, got %v", f)
		}
	}
	return nil
}
