package core

// Team identifies the side a soldier belongs to.
type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// Position is a WGS84 coordinate.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox is the geographic extent declared by a tile archive,
// in the MBTiles "west,south,east,north" convention.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Contains reports whether the position lies inside the box (inclusive).
func (b BoundingBox) Contains(p Position) bool {
	return p.Latitude >= b.South && p.Latitude <= b.North &&
		p.Longitude >= b.West && p.Longitude <= b.East
}

// TileKey addresses a single tile. Row follows the caller's convention;
// conversion between XYZ and TMS rows happens in the tile provider.
type TileKey struct {
	Zoom   int
	Column int
	Row    int
}

// ZoomRange is the span of zoom levels an archive has data for.
type ZoomRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}
