package overlay

// markerPalette is the fixed set of marker colors. Assignment is by hash
// of the entity id so the same id always lands on the same color.
var markerPalette = []string{
	"#00FF00", // green
	"#0000FF", // blue
	"#FFFF00", // yellow
	"#FF00FF", // magenta
	"#00FFFF", // cyan
	"#FFA500", // orange
	"#800080", // purple
	"#FFFFFF", // white
	"#000000", // black
}

// AlertColor overrides the palette color for eliminated and out-of-bounds
// entities.
const AlertColor = "#ff4444"

// colorForID hashes an entity id onto the palette. The hash is the classic
// 31x rolling hash in wrapping 32-bit arithmetic; empty ids fall back to
// the first palette entry.
func colorForID(id string) string {
	if id == "" {
		return markerPalette[0]
	}
	var h int32
	for _, r := range id {
		h = h*31 + int32(uint16(r))
	}
	idx := int64(h)
	if idx < 0 {
		idx = -idx
	}
	return markerPalette[idx%int64(len(markerPalette))]
}
