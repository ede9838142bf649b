package geodesy

import "math"

// LocalPlane is an equirectangular tangent plane around Origin. It is only
// used where a vector space is needed (clustering, centroids); distances
// that matter go through the ellipsoid.
type LocalPlane struct {
	Origin  GeoPoint
	mPerLat float64
	mPerLon float64
}

// NewLocalPlane builds the plane using the ellipsoid's local radii of curvature.
func NewLocalPlane(origin GeoPoint, e Ellipsoid) LocalPlane {
	a := e.semiMajor()
	e2 := e.Fl * (2 - e.Fl)
	sinLat, cosLat := math.Sincos(rad(origin.Lat))
	w := math.Sqrt(1 - e2*sinLat*sinLat)
	meridional := a * (1 - e2) / (w * w * w)
	prime := a / w
	return LocalPlane{
		Origin:  origin,
		mPerLat: meridional * math.Pi / 180,
		mPerLon: prime * cosLat * math.Pi / 180,
	}
}

// ToXY returns the (east, north) meters of p from the origin.
func (lp LocalPlane) ToXY(p GeoPoint) (x, y float64) {
	return NormalizeLon(p.Lon-lp.Origin.Lon) * lp.mPerLon, (p.Lat - lp.Origin.Lat) * lp.mPerLat
}

// FromXY is the inverse of ToXY.
func (lp LocalPlane) FromXY(x, y float64) GeoPoint {
	lon := lp.Origin.Lon
	if lp.mPerLon > 0 {
		lon += x / lp.mPerLon
	}
	return GeoPoint{Lat: lp.Origin.Lat + y/lp.mPerLat, Lon: NormalizeLon(lon)}
}
