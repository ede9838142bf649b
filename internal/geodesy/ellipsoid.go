package geodesy

import (
	"errors"
	"math"

	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"
)

// ErrNoConvergence is returned by Inverse when the iteration fails,
// which only happens for nearly antipodal points.
var ErrNoConvergence = errors.New("geodesy: inverse solution did not converge")

const (
	convergence   = 1e-12
	maxIterations = 200
)

// Ellipsoid is a reference ellipsoid. Er is the equatorial radius in km,
// Fl the flattening.
type Ellipsoid struct {
	globe.Ellipsoid
}

// WGS84 is the GPS reference ellipsoid.
var WGS84 = Ellipsoid{globe.Ellipsoid{Er: 6378.137, Fl: 1 / 298.257223563}}

func (e Ellipsoid) semiMajor() float64 { return e.Er * 1000 }
func (e Ellipsoid) semiMinor() float64 { return e.semiMajor() * (1 - e.Fl) }

// Direct solves the direct geodesic problem: the point reached by travelling
// distance meters from origin along the initial bearing. The returned
// longitude is not normalized and may leave (-180, 180].
func (e Ellipsoid) Direct(origin GeoPoint, bearing, distance float64) GeoPoint {
	if distance == 0 {
		return origin
	}
	a, b, f := e.semiMajor(), e.semiMinor(), e.Fl

	alpha1 := rad(bearing)
	sinAlpha1, cosAlpha1 := math.Sincos(alpha1)

	tanU1 := (1 - f) * math.Tan(rad(origin.Lat))
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1

	sigma1 := math.Atan2(tanU1, cosAlpha1)
	sinAlpha := cosU1 * sinAlpha1
	cosSqAlpha := 1 - sinAlpha*sinAlpha
	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA, bigB := vincentyAB(uSq)

	sigma := distance / (b * bigA)
	var sinSigma, cosSigma, cos2SigmaM float64
	for i := 0; i < maxIterations; i++ {
		cos2SigmaM = math.Cos(2*sigma1 + sigma)
		sinSigma, cosSigma = math.Sincos(sigma)
		deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
		prev := sigma
		sigma = distance/(b*bigA) + deltaSigma
		if math.Abs(sigma-prev) < convergence {
			break
		}
	}
	cos2SigmaM = math.Cos(2*sigma1 + sigma)
	sinSigma, cosSigma = math.Sincos(sigma)

	x := sinU1*sinSigma - cosU1*cosSigma*cosAlpha1
	lat2 := math.Atan2(sinU1*cosSigma+cosU1*sinSigma*cosAlpha1, (1-f)*math.Sqrt(sinAlpha*sinAlpha+x*x))
	lambda := math.Atan2(sinSigma*sinAlpha1, cosU1*cosSigma-sinU1*sinSigma*cosAlpha1)
	c := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
	l := lambda - (1-c)*f*sinAlpha*(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

	return GeoPoint{Lat: deg(lat2), Lon: origin.Lon + deg(l)}
}

// Inverse solves the inverse geodesic problem, returning the distance in
// meters and the initial bearing from p1 to p2.
func (e Ellipsoid) Inverse(p1, p2 GeoPoint) (distance, bearing float64, err error) {
	a, b, f := e.semiMajor(), e.semiMinor(), e.Fl

	l := rad(NormalizeLon(p2.Lon - p1.Lon))
	u1 := math.Atan((1 - f) * math.Tan(rad(p1.Lat)))
	u2 := math.Atan((1 - f) * math.Tan(rad(p2.Lat)))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinLambda, cosLambda, sinSigma, cosSigma, sigma, cosSqAlpha, cos2SigmaM float64
	converged := false
	for i := 0; i < maxIterations; i++ {
		sinLambda, cosLambda = math.Sincos(lambda)
		t1 := cosU2 * sinLambda
		t2 := cosU1*sinU2 - sinU1*cosU2*cosLambda
		sinSigma = math.Sqrt(t1*t1 + t2*t2)
		if sinSigma == 0 {
			return 0, 0, nil // coincident points
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		cos2SigmaM = 0 // equatorial line
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}
		c := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
		prev := lambda
		lambda = l + (1-c)*f*sinAlpha*(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda) > math.Pi {
			return 0, 0, ErrNoConvergence
		}
		if math.Abs(lambda-prev) < convergence {
			converged = true
			break
		}
	}
	if !converged {
		return 0, 0, ErrNoConvergence
	}

	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA, bigB := vincentyAB(uSq)
	deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	distance = b * bigA * (sigma - deltaSigma)
	bearing = NormalizeBearing(deg(math.Atan2(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)))
	return distance, bearing, nil
}

// Distance returns the surface distance in meters between p1 and p2.
// Falls back to the Andoyer-Lambert approximation when Vincenty's inverse
// does not converge.
func (e Ellipsoid) Distance(p1, p2 GeoPoint) float64 {
	d, _, err := e.Inverse(p1, p2)
	if err == nil {
		return d
	}
	return e.ApproxDistance(p1, p2)
}

// ApproxDistance is the Andoyer-Lambert surface distance in meters.
// Accurate to roughly f² of the distance; cheap and always defined.
func (e Ellipsoid) ApproxDistance(p1, p2 GeoPoint) float64 {
	if p1 == p2 {
		return 0
	}
	// meeus measures longitude positive west.
	c1 := globe.Coord{Lat: unit.AngleFromDeg(p1.Lat), Lon: unit.AngleFromDeg(-p1.Lon)}
	c2 := globe.Coord{Lat: unit.AngleFromDeg(p2.Lat), Lon: unit.AngleFromDeg(-p2.Lon)}
	return e.Ellipsoid.Distance(c1, c2) * 1000
}

func vincentyAB(uSq float64) (bigA, bigB float64) {
	bigA = 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB = uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	return bigA, bigB
}
