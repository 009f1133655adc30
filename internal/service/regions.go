package service

import (
	"strings"

	"github.com/klenoapp/kleno-server/internal/geo"
)

// Region anchor points used to stabilize noisy client coordinates before
// routing or broadcasting. Keyed by lowercase region name.
var regionCenters = map[string]geo.Point{
	"lusaka":  {Lat: -15.4167, Lon: 28.2833},
	"chongwe": {Lat: -15.3292, Lon: 28.6820},
	"matero":  {Lat: -15.3885, Lon: 28.2478},
	"kafue":   {Lat: -15.7700, Lon: 28.1830},
}

// University clusters: campuses close enough to share listings and
// landlord broadcasts.
var universityClusters = map[string][]string{
	"UNZA":   {"UNZA", "CHRESO", "UNILUS"},
	"CHRESO": {"UNZA", "CHRESO", "UNILUS"},
	"UNILUS": {"UNZA", "CHRESO", "UNILUS"},
	"CUZ":    {"CUZ"},
}

// driftLimitKm is how far an origin may sit from its region anchor before
// it snaps to the anchor entirely.
const driftLimitKm = 5.0

// clusterFor returns the universities in the same cluster, falling back to
// the university alone when it is unmapped.
func clusterFor(university string) []string {
	if cluster, ok := universityClusters[university]; ok {
		return cluster
	}
	return []string{university}
}

// recalculateOrigin adjusts an origin against a named region anchor. Origins
// far from the anchor snap to it; nearby ones are pulled slightly toward it.
// Unknown regions leave the origin untouched.
func recalculateOrigin(origin geo.Point, region string) geo.Point {
	center, ok := regionCenters[strings.ToLower(region)]
	if !ok {
		return origin
	}

	if geo.HaversineKm(origin, center) > driftLimitKm {
		return center
	}

	return geo.Point{
		Lat: center.Lat + (origin.Lat-center.Lat)*0.95,
		Lon: center.Lon + (origin.Lon-center.Lon)*0.95,
	}
}
