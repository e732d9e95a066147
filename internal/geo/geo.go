package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tacmap/pkg/core"

	"github.com/wroge/wgs84"
)

// Distances are computed on WGS84 coordinates with a fixed mean earth
// radius. Fit-zoom math projects to EPSG 3857 because that is the tile
// grid the archives are cut in.

// EarthRadiusMeters is the mean radius used by the haversine formula.
const EarthRadiusMeters = 6371e3

// webMercatorExtent is the full width of the EPSG 3857 plane in meters.
const webMercatorExtent = 2 * math.Pi * 6378137.0

// ErrInvalidBounds is returned when a bounds metadata string cannot be
// parsed as four comma-separated floats.
var ErrInvalidBounds = errors.New("invalid bounds string")

// Haversine returns the great-circle distance in meters between two points.
func Haversine(a, b core.Position) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Midpoint returns the arithmetic midpoint of two positions. Distance
// labels sit at the midpoint of the line; the planar approximation matches
// what the map widget draws.
func Midpoint(a, b core.Position) core.Position {
	return core.Position{
		Latitude:  (a.Latitude + b.Latitude) / 2,
		Longitude: (a.Longitude + b.Longitude) / 2,
	}
}

// FormatDistance renders a distance for display: whole meters below 1 km,
// kilometers to two decimals at or above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

// ParseBounds parses an MBTiles bounds metadata value,
// "west,south,east,north".
func ParseBounds(s string) (core.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.BoundingBox{}, ErrInvalidBounds
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.BoundingBox{}, ErrInvalidBounds
		}
		vals[i] = v
	}
	return core.BoundingBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

// ToWebMercator projects a WGS84 position onto the EPSG 3857 plane.
func ToWebMercator(p core.Position) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(p.Longitude, p.Latitude, 0)
	return x, y
}

// BoundsZoom returns the largest integer zoom at which the bounding box
// fits inside a viewport of the given pixel size, assuming 256 px tiles.
// This mirrors the map widget's own fit computation so the server can hand
// clients a view that is guaranteed to have tile data.
func BoundsZoom(b core.BoundingBox, viewportW, viewportH int) int {
	swX, swY := ToWebMercator(core.Position{Latitude: b.South, Longitude: b.West})
	neX, neY := ToWebMercator(core.Position{Latitude: b.North, Longitude: b.East})

	dx := math.Abs(neX - swX)
	dy := math.Abs(neY - swY)
	if dx == 0 || dy == 0 || viewportW <= 0 || viewportH <= 0 {
		return 0
	}

	// Pixels per meter at zoom 0 is 256/extent; the bounds span doubles in
	// pixels with every zoom step.
	scaleX := float64(viewportW) / (dx / webMercatorExtent * 256)
	scaleY := float64(viewportH) / (dy / webMercatorExtent * 256)
	zoom := math.Floor(math.Log2(math.Min(scaleX, scaleY)))
	if zoom < 0 {
		return 0
	}
	return int(zoom)
}

// Center returns the midpoint of a bounding box.
func Center(b core.BoundingBox) core.Position {
	return core.Position{
		Latitude:  (b.South + b.North) / 2,
		Longitude: (b.West + b.East) / 2,
	}
}
