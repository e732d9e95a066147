package geo

import (
	"fmt"

	"tacmap/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
)

// TrailLineString converts an entity trail into a geom.LineString for
// export. Coordinates are ordered X=longitude, Y=latitude.
func TrailLineString(points []core.Position) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("trail needs at least 2 points, got %d", len(points))
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.Longitude, p.Latitude)
	}
	seq := geom.NewSequence(flat, geom.DimXY)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("trail line string: %w", err)
	}
	return ls, nil
}
