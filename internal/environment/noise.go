package environment

import (
	"context"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/hexatlas/internal/geodesy"
)

// NoiseProvider synthesizes deterministic attributes from layered simplex
// noise sampled in kilometers around the point. It stands in for a real
// elevation/climate service.
type NoiseProvider struct {
	elev, rain, hum opensimplex.Noise

	// MaxElevation scales normalized elevation noise to meters.
	MaxElevation float64
	// SeaDepth is subtracted so the lowest noise maps below sea level.
	SeaDepth float64
	// MaxPrecipitation scales rainfall to millimeters.
	MaxPrecipitation float64
	// Frequency is cycles per kilometer of the base octave.
	Frequency float64
}

// NewNoiseProvider builds a provider with three independent noise layers.
func NewNoiseProvider(seed int64) *NoiseProvider {
	return &NoiseProvider{
		elev:             opensimplex.NewNormalized(seed),
		rain:             opensimplex.NewNormalized(seed + 1),
		hum:              opensimplex.NewNormalized(seed + 2),
		MaxElevation:     3200,
		SeaDepth:         200,
		MaxPrecipitation: 250,
		Frequency:        0.01,
	}
}

func (n *NoiseProvider) Resolve(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error) {
	out := make([]Attributes, len(points))
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = n.at(p)
	}
	return out, nil
}

func (n *NoiseProvider) at(p geodesy.GeoPoint) Attributes {
	x, y := kmXY(p)

	elev := n.elevation(x, y)
	rain := octaveNoise(n.rain, x, y, 3, n.Frequency*0.75, 0.5)
	hum := octaveNoise(n.hum, x, y, 3, n.Frequency*0.6, 0.5)

	// Wetter air holds more moisture; high ground is drier.
	hum = clamp01(hum*0.7 + rain*0.3 - math.Max(elev, 0)/n.MaxElevation*0.2)
	precip := rain * n.MaxPrecipitation

	// Slope from a central difference one kilometer each way, as rise over run.
	const h = 1.0
	dx := (n.elevation(x+h, y) - n.elevation(x-h, y)) / (2 * h * 1000)
	dy := (n.elevation(x, y+h) - n.elevation(x, y-h)) / (2 * h * 1000)
	slope := math.Hypot(dx, dy)

	veg := clamp01(rain*0.6 + hum*0.4 - math.Max(elev-1800, 0)/1000)

	return Attributes{
		Elevation:     Float(elev),
		Precipitation: Float(precip),
		Humidity:      Float(hum),
		Slope:         Float(slope),
		Vegetation:    Float(veg),
	}
}

func (n *NoiseProvider) elevation(x, y float64) float64 {
	e := octaveNoise(n.elev, x, y, 4, n.Frequency, 0.5)
	// Sharpen peaks so mountains stay rare.
	e = math.Pow(e, 1.6)
	return e*(n.MaxElevation+n.SeaDepth) - n.SeaDepth
}

// kmXY flattens a point to kilometers on an equirectangular sheet.
func kmXY(p geodesy.GeoPoint) (x, y float64) {
	return p.Lon * 111.32 * math.Cos(p.Lat*math.Pi/180), p.Lat * 110.57
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
