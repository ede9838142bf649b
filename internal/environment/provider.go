package environment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/talgya/hexatlas/internal/geodesy"
)

// DefaultBatchSize is how many points are handed to a provider per call.
const DefaultBatchSize = 50

// ErrShortResult is returned when a provider answers a batch with the wrong
// number of attribute bundles.
var ErrShortResult = errors.New("environment: provider returned wrong number of results")

// Provider resolves environmental attributes for a set of points. The
// returned slice is parallel to points; unknown values are left nil.
type Provider interface {
	Resolve(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error)

func (f ProviderFunc) Resolve(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error) {
	return f(ctx, points)
}

// Sample is one pre-fetched observation.
type Sample struct {
	geodesy.GeoPoint `yaml:",inline"`
	Attributes       `yaml:",inline"`
}

// StaticProvider answers from a fixed set of samples, using the nearest
// sample within MaxDistance meters of each point. Points with no sample in
// range get empty attributes.
type StaticProvider struct {
	Samples     []Sample
	MaxDistance float64 // 0 means unlimited
}

func (s *StaticProvider) Resolve(ctx context.Context, points []geodesy.GeoPoint) ([]Attributes, error) {
	out := make([]Attributes, len(points))
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, bestDist := -1, math.Inf(1)
		for j, smp := range s.Samples {
			d := geodesy.WGS84.Distance(p, smp.GeoPoint)
			if d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 || (s.MaxDistance > 0 && bestDist > s.MaxDistance) {
			continue
		}
		out[i] = s.Samples[best].Attributes.Clone()
	}
	return out, nil
}

// ResolveBatched calls p once per batch of at most size points and stitches
// the results back together in input order.
func ResolveBatched(ctx context.Context, p Provider, points []geodesy.GeoPoint, size int) ([]Attributes, error) {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([]Attributes, 0, len(points))
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		got, err := p.Resolve(ctx, points[start:end])
		if err != nil {
			return nil, fmt.Errorf("resolve points %d-%d: %w", start, end-1, err)
		}
		if len(got) != end-start {
			return nil, fmt.Errorf("resolve points %d-%d: got %d, want %d: %w", start, end-1, len(got), end-start, ErrShortResult)
		}
		out = append(out, got...)
	}
	return out, nil
}
