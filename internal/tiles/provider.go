package tiles

import (
	"log/slog"
	"sync"

	"tacmap/internal/geo"
	"tacmap/pkg/core"
)

// View is the initial map view handed to clients after an archive loads:
// fit to the archive bounds at a zoom that is guaranteed to have data.
type View struct {
	Center core.Position `json:"center"`
	Zoom   int           `json:"zoom"`
}

// Provider adapts an Archive to the map widget's tile requests. Widget
// rows count from the north edge; the archive counts from the south, so
// every lookup flips the row: archiveRow = 2^zoom - widgetRow - 1.
// Get that backward and every tile renders mirrored vertically.
type Provider struct {
	mu      sync.RWMutex
	archive *Archive
	log     *slog.Logger
}

// NewProvider creates a provider with no archive loaded. All requests
// serve the fallback tile until SetArchive is called.
func NewProvider(log *slog.Logger) *Provider {
	return &Provider{log: log}
}

// SetArchive swaps in a new archive, fully closing the previous one first.
// Passing nil simply unloads.
func (p *Provider) SetArchive(a *Archive) {
	p.mu.Lock()
	old := p.archive
	p.archive = a
	p.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			p.log.Warn("Failed to close replaced archive", "error", err)
		}
	}
}

// Loaded reports whether an archive is currently active.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.archive != nil
}

// Info returns the active archive's metadata.
func (p *Provider) Info() (Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.archive == nil {
		return Info{}, false
	}
	return p.archive.Info(), true
}

// ProvideTile serves one tile for widget coordinates (zoom, column, row).
// It always returns image bytes: misses, an unset archive, and any panic
// in the lookup path all degrade to the fallback tile for that tile only.
func (p *Provider) ProvideTile(zoom, column, row int) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Tile lookup panicked", "zoom", zoom, "column", column, "row", row, "panic", r)
			data = FallbackTile
		}
	}()

	p.mu.RLock()
	archive := p.archive
	p.mu.RUnlock()

	if archive == nil || zoom < 0 || column < 0 || row < 0 {
		return FallbackTile
	}

	key := core.TileKey{
		Zoom:   zoom,
		Column: column,
		Row:    (1 << uint(zoom)) - row - 1,
	}
	tile, ok := archive.Tile(key)
	if !ok {
		return FallbackTile
	}
	return tile
}

// FitView computes the view clients should open with: the bounds center at
// min(idealZoomForBounds, maxDataZoom-1), never below minDataZoom. Keeping
// one level under the maximum avoids fitting onto a zoom with no tiles.
func (p *Provider) FitView(viewportW, viewportH int) (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.archive == nil || p.archive.Info().Bounds == nil {
		return View{}, false
	}
	info := p.archive.Info()
	bounds := *info.Bounds

	zoom := geo.BoundsZoom(bounds, viewportW, viewportH)
	if max := info.ZoomRange.Max - 1; zoom > max {
		zoom = max
	}
	if zoom < info.ZoomRange.Min {
		zoom = info.ZoomRange.Min
	}
	return View{Center: geo.Center(bounds), Zoom: zoom}, true
}
