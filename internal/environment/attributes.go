// Package environment carries the per-hex environmental attributes the
// classifier consumes, and the providers that resolve them for hex centers.
package environment

import (
	"fmt"
	"math"
	"strings"
)

// Attribute names as used in classifier rules and configuration.
const (
	Elevation     = "elevation"
	Precipitation = "precipitation"
	Humidity      = "humidity"
	Slope         = "slope"
	Vegetation    = "vegetation"
)

// Names lists every attribute in a fixed order.
var Names = []string{Elevation, Precipitation, Humidity, Slope, Vegetation}

// Attributes is one hex's environmental data. A nil field is unknown.
// Elevation is meters, precipitation millimeters, humidity a 0..1 fraction.
// Slope and vegetation are unitless proxies.
type Attributes struct {
	Elevation     *float64 `json:"elevation,omitempty" yaml:"elevation,omitempty" msgpack:"elevation,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty" yaml:"precipitation,omitempty" msgpack:"precipitation,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty" yaml:"humidity,omitempty" msgpack:"humidity,omitempty"`
	Slope         *float64 `json:"slope,omitempty" yaml:"slope,omitempty" msgpack:"slope,omitempty"`
	Vegetation    *float64 `json:"vegetation,omitempty" yaml:"vegetation,omitempty" msgpack:"vegetation,omitempty"`
}

// Float returns a pointer to v, for building Attributes literals.
func Float(v float64) *float64 {
	return &v
}

// KnownAttribute reports whether name is one of Names.
func KnownAttribute(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

func (a *Attributes) field(name string) **float64 {
	switch name {
	case Elevation:
		return &a.Elevation
	case Precipitation:
		return &a.Precipitation
	case Humidity:
		return &a.Humidity
	case Slope:
		return &a.Slope
	case Vegetation:
		return &a.Vegetation
	}
	return nil
}

// Get returns the named value and whether it is known. NaN counts as unknown.
func (a Attributes) Get(name string) (float64, bool) {
	f := a.field(name)
	if f == nil || *f == nil || math.IsNaN(**f) {
		return 0, false
	}
	return **f, true
}

// With returns a copy of a with the named value set.
func (a Attributes) With(name string, v float64) (Attributes, error) {
	out := a.Clone()
	f := out.field(name)
	if f == nil {
		return a, fmt.Errorf("unknown attribute %q", name)
	}
	*f = Float(v)
	return out, nil
}

// Clone copies a so the result shares no pointers with it.
func (a Attributes) Clone() Attributes {
	var out Attributes
	for _, n := range Names {
		if v, ok := a.Get(n); ok {
			*out.field(n) = Float(v)
		}
	}
	return out
}

// Known returns the known values keyed by attribute name.
func (a Attributes) Known() map[string]float64 {
	m := make(map[string]float64, len(Names))
	for _, n := range Names {
		if v, ok := a.Get(n); ok {
			m[n] = v
		}
	}
	return m
}

// Empty reports whether no attribute is known.
func (a Attributes) Empty() bool {
	return len(a.Known()) == 0
}

func (a Attributes) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, n := range Names {
		if i > 0 {
			b.WriteByte(' ')
		}
		if v, ok := a.Get(n); ok {
			fmt.Fprintf(&b, "%s=%g", n, v)
		} else {
			fmt.Fprintf(&b, "%s=?", n)
		}
	}
	b.WriteByte('}')
	return b.String()
}
