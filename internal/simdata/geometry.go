// Package simdata generates synthetic candidate-sample datasets by
// propagating two-line element sets with SGP4 and evaluating the link
// geometry and a free-space link budget at a fixed ground observer.
package simdata

import "math"

// EarthRadiusKm is the mean Earth radius used for all geometry here
// (kilometres). The link model treats the Earth as a sphere.
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product v x other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Observer is a fixed ground terminal. Altitude is above the mean
// Earth sphere.
type Observer struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// ECEF returns the observer position in Earth-fixed kilometres.
func (o Observer) ECEF() Vec3 {
	lat := o.LatDeg * math.Pi / 180
	lon := o.LonDeg * math.Pi / 180
	r := EarthRadiusKm + o.AltKm
	cosLat := math.Cos(lat)
	return Vec3{
		X: r * cosLat * math.Cos(lon),
		Y: r * cosLat * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	// Vector from observer to target.
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	// Local zenith at observer is its normalised position vector.
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{
		X: observer.X / r,
		Y: observer.Y / r,
		Z: observer.Z / r,
	}

	// Angle between v and zenith.
	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	// Elevation is measured from local horizon (90° − zenith angle).
	return 90.0 - gammaDeg
}

// AzimuthDegrees returns the compass bearing of the target as seen from
// the observer, in degrees clockwise from true north in [0, 360).
func AzimuthDegrees(observer, target Vec3) float64 {
	r := observer.Norm()
	if r == 0 {
		return 0
	}
	up := Vec3{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	// Local east is k̂ × up; at the poles that degenerates and any
	// bearing is as good as another.
	east := Vec3{X: -up.Y, Y: up.X, Z: 0}
	eNorm := east.Norm()
	if eNorm < 1e-9 {
		east = Vec3{X: 0, Y: 1, Z: 0}
	} else {
		east = Vec3{X: east.X / eNorm, Y: east.Y / eNorm, Z: 0}
	}
	north := up.Cross(east)

	v := target.Sub(observer)
	azRad := math.Atan2(v.Dot(east), v.Dot(north))
	azDeg := azRad * 180.0 / math.Pi
	if azDeg < 0 {
		azDeg += 360
	}
	return azDeg
}

// GroundDistanceKm returns the great-circle distance between the
// observer's and the target's sub-satellite points.
func GroundDistanceKm(observer, target Vec3) float64 {
	ro := observer.Norm()
	rt := target.Norm()
	if ro == 0 || rt == 0 {
		return 0
	}
	cosTheta := observer.Dot(target) / (ro * rt)
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	return EarthRadiusKm * math.Acos(cosTheta)
}
