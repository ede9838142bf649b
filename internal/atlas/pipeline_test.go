package atlas_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/terrain"
	"github.com/talgya/hexatlas/internal/world"
)

// highlands returns mountains north of 45.05 and desert elsewhere.
func highlands(calls *atomic.Int32) environment.Provider {
	return environment.ProviderFunc(func(_ context.Context, pts []geodesy.GeoPoint) ([]environment.Attributes, error) {
		if calls != nil {
			calls.Add(1)
		}
		out := make([]environment.Attributes, len(pts))
		for i, p := range pts {
			elev := 300.0
			if p.Lat > 45.05 {
				elev = 2500
			}
			out[i] = environment.Attributes{
				Elevation:     environment.Float(elev),
				Precipitation: environment.Float(10),
				Humidity:      environment.Float(0.1),
			}
		}
		return out, nil
	})
}

func scenario() atlas.Request {
	return atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 45, Lon: -93},
		EdgeMeters: 16000 / math.Sqrt(3),
		Width:      5,
		Height:     5,
		Regions:    4,
	}
}

func TestRunScenario(t *testing.T) {
	res, err := atlas.Run(context.Background(), scenario(), highlands(nil), atlas.DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.NotNil(t, res.Partition)
	assert.NoError(t, res.SegmentErr)

	records := res.Records()
	require.Len(t, records, 25)
	for _, rec := range records {
		assert.Zero(t, rec.Q+rec.R+rec.S)
		require.NotNil(t, rec.Region)
		assert.Contains(t, []string{"mountains", "desert"}, rec.Terrain)
		assert.Equal(t, 1.0, rec.Confidence)
	}
	assert.Equal(t, map[terrain.Label]int{terrain.Mountains: 10, terrain.Desert: 15}, res.TerrainCounts())

	sums := res.Summaries()
	require.Len(t, sums, 4)
	total := 0
	for _, s := range sums {
		assert.GreaterOrEqual(t, s.Size, 5)
		assert.LessOrEqual(t, s.Size, 8)
		counted := 0
		for _, n := range s.Terrain {
			counted += n
		}
		assert.Equal(t, s.Size, counted)
		for _, n := range s.Terrain {
			assert.LessOrEqual(t, n, s.Terrain[s.Dominant])
		}
		require.NotNil(t, s.MeanElevation)
		assert.True(t, *s.MeanElevation >= 300 && *s.MeanElevation <= 2500)
		total += s.Size
	}
	assert.Equal(t, 25, total)

	for i := 0; i < res.Grid.Len(); i++ {
		h := res.Grid.At(i)
		for _, st := range []world.Stage{world.StageCenter, world.StageAttributes, world.StageTerrain, world.StageRegion} {
			assert.True(t, h.Has(st), "hex %v missing %v", h.Coord, st)
		}
	}
}

func TestRunRejectsConfigBeforeWork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*atlas.Request, *atlas.Options)
	}{
		{"zero width", func(r *atlas.Request, _ *atlas.Options) { r.Width = 0 }},
		{"negative height", func(r *atlas.Request, _ *atlas.Options) { r.Height = -3 }},
		{"zero regions", func(r *atlas.Request, _ *atlas.Options) { r.Regions = 0 }},
		{"too many regions", func(r *atlas.Request, _ *atlas.Options) { r.Regions = 26 }},
		{"size overflows", func(r *atlas.Request, _ *atlas.Options) {
			r.Width, r.Height, r.Regions = math.MaxInt, math.MaxInt, 1
		}},
		{"bad edge", func(r *atlas.Request, _ *atlas.Options) { r.EdgeMeters = -1 }},
		{"bad center", func(r *atlas.Request, _ *atlas.Options) { r.Center.Lat = 120 }},
		{"bad terrain mode", func(_ *atlas.Request, o *atlas.Options) { o.Terrain.Mode = "blurry" }},
		{"negative tolerance", func(_ *atlas.Request, o *atlas.Options) { o.Tolerance = -0.5 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			req, opts := scenario(), atlas.DefaultOptions()
			tc.mutate(&req, &opts)
			_, err := atlas.Run(context.Background(), req, highlands(&calls), opts)
			assert.ErrorIs(t, err, faults.ErrConfiguration)
			assert.Zero(t, calls.Load())
		})
	}
}

func TestRunRangeFailuresAreSkipped(t *testing.T) {
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: 60, Lon: 10},
		EdgeMeters: 10000,
		Width:      3,
		Height:     5,
		Regions:    2,
	}
	opts := atlas.DefaultOptions()
	opts.PoleLimit = 60.2 // the northern row lands near 60.27

	res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(1), opts)
	require.NoError(t, err)

	require.Len(t, res.Failures, 3)
	for _, f := range res.Failures {
		assert.ErrorIs(t, f.Err, faults.ErrGeodesicRange)
		assert.Equal(t, -2, f.Coord.R)
	}
	assert.Len(t, res.Records(), 12)
	require.NotNil(t, res.Partition)
	assert.Len(t, res.Partition.Assign, 12)

	for _, f := range res.Failures {
		h := res.Grid.Get(f.Coord)
		assert.False(t, h.Has(world.StageCenter))
		assert.False(t, h.Has(world.StageTerrain))
		assert.False(t, h.Has(world.StageRegion))
	}

	// More regions than surviving hexes skips segmentation but keeps the map.
	req.Regions = 14
	res, err = atlas.Run(context.Background(), req, environment.NewNoiseProvider(1), opts)
	require.NoError(t, err)
	assert.Nil(t, res.Partition)
	assert.ErrorIs(t, res.SegmentErr, faults.ErrConfiguration)
	assert.Nil(t, res.Summaries())
	assert.Len(t, res.Records(), 12)
}

func TestRunProviderErrors(t *testing.T) {
	boom := errors.New("elevation service unavailable")
	failing := environment.ProviderFunc(func(context.Context, []geodesy.GeoPoint) ([]environment.Attributes, error) {
		return nil, boom
	})
	_, err := atlas.Run(context.Background(), scenario(), failing, atlas.DefaultOptions())
	assert.ErrorIs(t, err, boom)

	_, err = atlas.Run(context.Background(), scenario(), nil, atlas.DefaultOptions())
	assert.ErrorIs(t, err, faults.ErrConfiguration)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := atlas.Run(ctx, scenario(), environment.NewNoiseProvider(3), atlas.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIndependentOfWorkerCount(t *testing.T) {
	req := atlas.Request{
		Center:     geodesy.GeoPoint{Lat: -33.9, Lon: 151.2},
		EdgeMeters: 5000,
		Width:      12,
		Height:     9,
		Regions:    6,
	}
	var want []atlas.HexRecord
	for _, workers := range []int{1, 3, 16} {
		opts := atlas.DefaultOptions()
		opts.Workers = workers
		opts.BatchSize = 7
		opts.Terrain.Mode = terrain.Fuzzy
		opts.Terrain.Smooth = true
		res, err := atlas.Run(context.Background(), req, environment.NewNoiseProvider(11), opts)
		require.NoError(t, err)
		got := res.Records()
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}
