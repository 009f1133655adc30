// Package geo provides the geodesic primitives used by the trip tracking
// engine: great-circle distance, initial bearing, compass labeling, and
// point-to-segment distance. All functions are pure and safe for concurrent
// use.
package geo

import (
	"errors"
	"math"
)

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// ErrInvalidCoordinates is returned for a missing or out-of-range lat/lon pair.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the point lies within valid latitude/longitude ranges.
// Malformed coordinates must be rejected here; the math functions below never
// error.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return ErrInvalidCoordinates
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// HaversineKm returns the great-circle distance between two points in
// kilometers. Symmetric, non-negative, and zero (within floating precision)
// when the points coincide.
func HaversineKm(p1, p2 Point) float64 {
	dlat := radians(p2.Lat - p1.Lat)
	dlon := radians(p2.Lon - p1.Lon)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(radians(p1.Lat))*math.Cos(radians(p2.Lat))*
			math.Sin(dlon/2)*math.Sin(dlon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BearingDegrees returns the initial compass bearing from one point to
// another, normalized to [0, 360). Returns 0 by convention when the points
// coincide.
func BearingDegrees(from, to Point) float64 {
	if from.Lat == to.Lat && from.Lon == to.Lon {
		return 0
	}

	lat1 := radians(from.Lat)
	lat2 := radians(to.Lat)
	dlon := radians(to.Lon - from.Lon)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	bearing := degrees(math.Atan2(y, x))
	return math.Mod(bearing+360, 360)
}

// directionLabels are the 8-way compass sectors, each spanning 45 degrees and
// centered on its cardinal/diagonal value ("N" covers [337.5, 22.5)).
var directionLabels = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// DirectionLabel maps a bearing in degrees to its 8-way compass sector.
func DirectionLabel(bearing float64) string {
	b := math.Mod(math.Mod(bearing, 360)+360, 360)
	idx := int(math.Floor((b+22.5)/45)) % 8
	return directionLabels[idx]
}

// PointToSegmentDistanceKm returns the perpendicular distance in kilometers
// from a point to the segment segStart->segEnd, clamped to the nearest
// endpoint when the projection falls outside the segment.
//
// The segment is projected onto a local equirectangular plane scaled by the
// cosine of the mean latitude. This is a deliberate simplification: it
// approximates true geodesic cross-track distance well at urban scales
// (segments under ~20 km away from the poles), which is the regime this
// engine operates in.
func PointToSegmentDistanceKm(point, segStart, segEnd Point) float64 {
	meanLat := radians((point.Lat + segStart.Lat + segEnd.Lat) / 3)
	scale := math.Cos(meanLat)

	// Planar coordinates in degree units, longitude corrected for latitude.
	px, py := point.Lon*scale, point.Lat
	ax, ay := segStart.Lon*scale, segStart.Lat
	bx, by := segEnd.Lon*scale, segEnd.Lat

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		// Degenerate segment: distance to the single point.
		return HaversineKm(point, segStart)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Point{
		Lat: ay + t*dy,
		Lon: (ax + t*dx) / scale,
	}
	return HaversineKm(point, closest)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
