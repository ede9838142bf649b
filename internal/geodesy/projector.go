package geodesy

import (
	"fmt"
	"math"

	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/hexgrid"
)

// DefaultPoleLimit is the largest |latitude| a projected hex center may have.
const DefaultPoleLimit = 89.9

// RangeError reports a hex whose projected center is not a usable coordinate.
type RangeError struct {
	Coord  hexgrid.HexCoord
	Lat    float64
	Lon    float64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("geodesic range error at hex %v (lat=%.6f lon=%.6f): %s", e.Coord, e.Lat, e.Lon, e.Reason)
}

func (e *RangeError) Unwrap() error {
	return faults.ErrGeodesicRange
}

// Projector maps hex coordinates to geographic hex centers around Center.
type Projector struct {
	Center    GeoPoint
	Layout    hexgrid.Layout
	Ellipsoid Ellipsoid
	PoleLimit float64
	// WrapLongitude folds centers that cross the antimeridian into (-180, 180].
	// When false such centers are reported as range errors.
	WrapLongitude bool
}

// Option customizes a Projector.
type Option func(*Projector)

// WithPoleLimit overrides DefaultPoleLimit.
func WithPoleLimit(deg float64) Option {
	return func(p *Projector) { p.PoleLimit = deg }
}

// WithWrapLongitude sets antimeridian handling.
func WithWrapLongitude(wrap bool) Option {
	return func(p *Projector) { p.WrapLongitude = wrap }
}

// WithEllipsoid replaces WGS84.
func WithEllipsoid(e Ellipsoid) Option {
	return func(p *Projector) { p.Ellipsoid = e }
}

// NewProjector validates the map center and hex edge length (meters).
func NewProjector(center GeoPoint, edge float64, opts ...Option) (*Projector, error) {
	p := &Projector{
		Center:        center,
		Layout:        hexgrid.Layout{Size: edge},
		Ellipsoid:     WGS84,
		PoleLimit:     DefaultPoleLimit,
		WrapLongitude: true,
	}
	for _, opt := range opts {
		opt(p)
	}

	if math.IsNaN(edge) || math.IsInf(edge, 0) || edge <= 0 {
		return nil, faults.Config("edge", "must be a positive length in meters, got %v", edge)
	}
	if p.PoleLimit <= 0 || p.PoleLimit > 90 {
		return nil, faults.Config("pole_limit", "must be in (0, 90], got %v", p.PoleLimit)
	}
	if !center.Valid() {
		return nil, faults.Config("center", "%v is not a valid coordinate", center)
	}
	if math.Abs(center.Lat) > p.PoleLimit {
		return nil, faults.Config("center", "latitude %.4f is beyond the pole limit %.4f", center.Lat, p.PoleLimit)
	}
	return p, nil
}

// Polar returns the bearing (degrees, [0, 360)) and distance (meters) from
// the map center to h's planar center.
func (p *Projector) Polar(h hexgrid.HexCoord) (bearing, distance float64) {
	east, north := p.Layout.ToPlanar(h)
	return NormalizeBearing(deg(math.Atan2(east, north))), math.Hypot(east, north)
}

// Project returns the geographic center of hex h.
func (p *Projector) Project(h hexgrid.HexCoord) (GeoPoint, error) {
	bearing, distance := p.Polar(h)
	if distance == 0 {
		return p.Center, nil
	}

	raw := p.Ellipsoid.Direct(p.Center, bearing, distance)
	if math.IsNaN(raw.Lat) || math.IsNaN(raw.Lon) || math.IsInf(raw.Lat, 0) || math.IsInf(raw.Lon, 0) {
		return GeoPoint{}, &RangeError{Coord: h, Lat: raw.Lat, Lon: raw.Lon, Reason: "non-finite result"}
	}
	if math.Abs(raw.Lat) > p.PoleLimit {
		return GeoPoint{}, &RangeError{Coord: h, Lat: raw.Lat, Lon: raw.Lon,
			Reason: fmt.Sprintf("latitude beyond pole limit %.4f", p.PoleLimit)}
	}

	out := GeoPoint{Lat: raw.Lat, Lon: NormalizeLon(raw.Lon)}
	if out.Lon != raw.Lon && !p.WrapLongitude {
		return GeoPoint{}, &RangeError{Coord: h, Lat: raw.Lat, Lon: raw.Lon, Reason: "crosses the antimeridian"}
	}
	if !out.Valid() {
		return GeoPoint{}, &RangeError{Coord: h, Lat: out.Lat, Lon: out.Lon, Reason: "outside valid range"}
	}
	return out, nil
}
