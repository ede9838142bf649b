// Package geodesy projects hex centers onto the Earth's surface.
//
// Distances are meters, angles are degrees, bearings are clockwise from
// north. All ellipsoid math uses Vincenty's direct and inverse solutions.
package geodesy

import (
	"fmt"
	"math"
)

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" yaml:"lon" msgpack:"lon"`
}

// Valid reports whether the point is finite with lat in [-90, 90] and lon in (-180, 180].
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon > -180 && p.Lon <= 180
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// NormalizeLon folds a longitude into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon <= -180 {
		lon += 360
	} else if lon > 180 {
		lon -= 360
	}
	return lon
}

// NormalizeBearing folds a bearing into [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(r float64) float64   { return r * 180 / math.Pi }
