// Package geo provides straight-line distance estimates for route legs.
//
// Distances use the Haversine formula on WGS-84 coordinates. They are the
// fallback when a stop carries no planned leg distance; real road routing is
// out of scope.
package geo

import (
	"math"

	"github.com/shiva/freightroute/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// RoadFactor inflates great-circle distance to approximate road distance.
	RoadFactor = 1.25

	// DefaultSpeedKmph is the assumed average speed of a loaded van.
	DefaultSpeedKmph = 65.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// RoadKm estimates the road distance between two points.
func RoadKm(a, b model.Location) float64 {
	return HaversineKm(a, b) * RoadFactor
}

// ─── Legs ───────────────────────────────────────────────────

// LegKm estimates every leg of an ordered list of optional points. Leg i runs
// from point i to point i+1; it is nil when either end has no coordinates.
func LegKm(points []*model.Location) []*float64 {
	if len(points) < 2 {
		return nil
	}
	legs := make([]*float64, len(points)-1)
	for i := 0; i < len(points)-1; i++ {
		if points[i] == nil || points[i+1] == nil {
			continue
		}
		km := RoadKm(*points[i], *points[i+1])
		legs[i] = &km
	}
	return legs
}

// DriveMinutes converts a distance into whole driving minutes at speedKmph,
// rounding up. A non-positive speed falls back to DefaultSpeedKmph.
func DriveMinutes(km, speedKmph float64) int {
	if speedKmph <= 0 {
		speedKmph = DefaultSpeedKmph
	}
	return int(math.Ceil(km / speedKmph * 60.0))
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
