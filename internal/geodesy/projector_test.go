package geodesy_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
)

// edgeFor16km gives hexes whose horizontal spacing is 16 km.
var edgeFor16km = 16000 / math.Sqrt(3)

func TestDirectInverseRoundTrip(t *testing.T) {
	origins := []geodesy.GeoPoint{
		{Lat: 0, Lon: 0},
		{Lat: 45, Lon: -93},
		{Lat: -33.9, Lon: 151.2},
		{Lat: 60.2, Lon: 15.6},
	}
	for _, o := range origins {
		for _, bearing := range []float64{0, 37.5, 90, 181, 270, 359} {
			for _, dist := range []float64{1, 1500, 32000, 250000, 2e6} {
				p := geodesy.WGS84.Direct(o, bearing, dist)
				p.Lon = geodesy.NormalizeLon(p.Lon)
				got, gotBearing, err := geodesy.WGS84.Inverse(o, p)
				require.NoError(t, err)
				assert.InDelta(t, dist, got, 1e-3, "origin %v bearing %v", o, bearing)
				if dist > 1000 {
					assert.InDelta(t, 0, angleDiff(bearing, gotBearing), 1e-6, "origin %v dist %v", o, dist)
				}
			}
		}
	}
}

func TestInverseKnownDistance(t *testing.T) {
	// Flinders Peak to Buninyong, Vincenty's 1975 test line.
	a := geodesy.GeoPoint{Lat: -(37 + 57.0/60 + 3.72030/3600), Lon: 144 + 25.0/60 + 29.52440/3600}
	b := geodesy.GeoPoint{Lat: -(37 + 39.0/60 + 10.15610/3600), Lon: 143 + 55.0/60 + 35.38390/3600}
	d, bearing, err := geodesy.WGS84.Inverse(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 54972.271, d, 0.01)
	assert.InDelta(t, 306+52.0/60+5.37/3600, bearing, 1e-4)

	// Andoyer-Lambert agrees to well under a meter on a line this short.
	assert.InDelta(t, d, geodesy.WGS84.ApproxDistance(a, b), 5)
}

func TestInverseAntipodalFallsBack(t *testing.T) {
	a := geodesy.GeoPoint{Lat: 0, Lon: 0}
	b := geodesy.GeoPoint{Lat: 0.5, Lon: 179.5}
	if _, _, err := geodesy.WGS84.Inverse(a, b); err != nil {
		assert.ErrorIs(t, err, geodesy.ErrNoConvergence)
	}

	d := geodesy.WGS84.Distance(a, b)
	assert.Greater(t, d, 19.5e6)
	assert.Less(t, d, 20.2e6)
}

func TestInverseCoincident(t *testing.T) {
	p := geodesy.GeoPoint{Lat: 12, Lon: 34}
	d, _, err := geodesy.WGS84.Inverse(p, p)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestProjectorScenario(t *testing.T) {
	center := geodesy.GeoPoint{Lat: 45.0, Lon: -93.0}
	p, err := geodesy.NewProjector(center, edgeFor16km)
	require.NoError(t, err)

	coords, err := hexgrid.Rectangle(5, 5)
	require.NoError(t, err)
	require.Len(t, coords, 25)

	for _, h := range coords {
		got, err := p.Project(h)
		require.NoError(t, err, "hex %v", h)
		assert.True(t, got.Valid())

		_, want := p.Polar(h)
		d, _, err := geodesy.WGS84.Inverse(center, got)
		require.NoError(t, err)
		assert.InDelta(t, want, d, 1.0, "hex %v", h)
	}

	east := hexgrid.OffsetToCube(2, 0)
	got, err := p.Project(east)
	require.NoError(t, err)
	d, bearing, err := geodesy.WGS84.Inverse(center, got)
	require.NoError(t, err)
	assert.InDelta(t, 32000, d, 1.0)
	assert.InDelta(t, 90, bearing, 0.5)
	assert.Greater(t, got.Lon, center.Lon)
	assert.InDelta(t, center.Lat, got.Lat, 0.01)
}

func TestProjectorCenterHex(t *testing.T) {
	center := geodesy.GeoPoint{Lat: -10, Lon: 20}
	p, err := geodesy.NewProjector(center, 1000)
	require.NoError(t, err)
	got, err := p.Project(hexgrid.HexCoord{})
	require.NoError(t, err)
	assert.Equal(t, center, got)
}

func TestProjectorRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		center geodesy.GeoPoint
		edge   float64
		opts   []geodesy.Option
	}{
		{"zero edge", geodesy.GeoPoint{Lat: 1, Lon: 1}, 0, nil},
		{"nan edge", geodesy.GeoPoint{Lat: 1, Lon: 1}, math.NaN(), nil},
		{"bad latitude", geodesy.GeoPoint{Lat: 91, Lon: 1}, 100, nil},
		{"bad longitude", geodesy.GeoPoint{Lat: 1, Lon: -180}, 100, nil},
		{"center at pole", geodesy.GeoPoint{Lat: 89.95, Lon: 1}, 100, nil},
		{"bad pole limit", geodesy.GeoPoint{Lat: 1, Lon: 1}, 100, []geodesy.Option{geodesy.WithPoleLimit(95)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := geodesy.NewProjector(tc.center, tc.edge, tc.opts...)
			assert.ErrorIs(t, err, faults.ErrConfiguration)
		})
	}
}

func TestProjectorPoleProximity(t *testing.T) {
	p, err := geodesy.NewProjector(geodesy.GeoPoint{Lat: 89.8, Lon: 0}, 10000)
	require.NoError(t, err)

	_, err = p.Project(hexgrid.OffsetToCube(0, -2)) // 30 km north
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrGeodesicRange)

	var rangeErr *geodesy.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, hexgrid.OffsetToCube(0, -2), rangeErr.Coord)

	_, err = p.Project(hexgrid.OffsetToCube(0, 2)) // 30 km south is fine
	assert.NoError(t, err)
}

func TestProjectorAntimeridian(t *testing.T) {
	center := geodesy.GeoPoint{Lat: 10, Lon: 179.9}
	east := hexgrid.OffsetToCube(2, 0) // ~35 km east crosses 180

	wrap, err := geodesy.NewProjector(center, 10000)
	require.NoError(t, err)
	got, err := wrap.Project(east)
	require.NoError(t, err)
	assert.True(t, got.Valid())
	assert.Less(t, got.Lon, -179.0)

	strict, err := geodesy.NewProjector(center, 10000, geodesy.WithWrapLongitude(false))
	require.NoError(t, err)
	_, err = strict.Project(east)
	assert.ErrorIs(t, err, faults.ErrGeodesicRange)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 180.0, geodesy.NormalizeLon(-180))
	assert.Equal(t, 180.0, geodesy.NormalizeLon(180))
	assert.InDelta(t, -179.0, geodesy.NormalizeLon(181), 1e-9)
	assert.InDelta(t, 10.0, geodesy.NormalizeLon(370), 1e-9)
	assert.InDelta(t, 270.0, geodesy.NormalizeBearing(-90), 1e-9)
	assert.Equal(t, 0.0, geodesy.NormalizeBearing(360))
}

func TestLocalPlaneRoundTrip(t *testing.T) {
	origin := geodesy.GeoPoint{Lat: 45, Lon: -93}
	lp := geodesy.NewLocalPlane(origin, geodesy.WGS84)
	p := geodesy.GeoPoint{Lat: 45.1, Lon: -92.8}
	x, y := lp.ToXY(p)
	back := lp.FromXY(x, y)
	assert.InDelta(t, p.Lat, back.Lat, 1e-9)
	assert.InDelta(t, p.Lon, back.Lon, 1e-9)

	// close to the true distance over a few tens of kilometers
	assert.InDelta(t, geodesy.WGS84.Distance(origin, p), math.Hypot(x, y), 50)
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+540, 360) - 180
	return d
}
