// Package tiles reads MBTiles archives and serves tile lookups to the map
// client. An archive is a SQLite file with a metadata table (string
// key/value pairs) and a tiles table keyed by (zoom_level, tile_column,
// tile_row) in the TMS row convention (row 0 = south edge).
package tiles

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"tacmap/internal/geo"
	"tacmap/pkg/core"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxZoomCeiling is the hard upper bound on served zoom levels regardless
// of what the archive declares.
const maxZoomCeiling = 21

// ErrCorruptArchive is returned when a buffer or file cannot be read as an
// MBTiles database. The archive stays unset, no partial state.
var ErrCorruptArchive = errors.New("corrupt or unreadable tile archive")

var sqliteMagic = []byte("SQLite format 3\x00")

type metadataRow struct {
	Name  string `gorm:"column:name"`
	Value string `gorm:"column:value"`
}

func (metadataRow) TableName() string { return "metadata" }

type tileRow struct {
	ZoomLevel  int    `gorm:"column:zoom_level"`
	TileColumn int    `gorm:"column:tile_column"`
	TileRow    int    `gorm:"column:tile_row"`
	TileData   []byte `gorm:"column:tile_data"`
}

func (tileRow) TableName() string { return "tiles" }

// Info is the archive metadata surfaced to callers and clients.
type Info struct {
	Bounds    *core.BoundingBox `json:"bounds,omitempty"`
	ZoomRange core.ZoomRange    `json:"zoomRange"`
	TileCount int64             `json:"tileCount"`
}

// Archive is a loaded MBTiles database. Exactly one archive is active per
// provider; loading a new one replaces (and closes) the old.
type Archive struct {
	db   *gorm.DB
	path string
	temp bool // remove path on Close

	info Info
	meta map[string]string
	log  *slog.Logger
}

// OpenFile opens an MBTiles file on disk and reads its metadata.
func OpenFile(path string, log *slog.Logger) (*Archive, error) {
	return open(path, false, log)
}

// OpenBytes writes a fetched or uploaded buffer to a temporary file and
// opens it. The temporary file is removed on Close.
func OpenBytes(buf []byte, log *slog.Logger) (*Archive, error) {
	if !bytes.HasPrefix(buf, sqliteMagic) {
		return nil, fmt.Errorf("%w: not a SQLite database", ErrCorruptArchive)
	}

	f, err := os.CreateTemp("", "tacmap-archive-*.mbtiles")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write temp archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close temp archive file: %w", err)
	}

	a, err := open(f.Name(), true, log)
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return a, nil
}

func open(path string, temp bool, log *slog.Logger) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	a := &Archive{db: db, path: path, temp: temp, log: log}
	if err := a.readMetadata(); err != nil {
		a.closeDB()
		if temp {
			// caller removes the temp file
			a.temp = false
		}
		return nil, err
	}

	log.Info("Tile archive loaded",
		"path", path,
		"tiles", a.info.TileCount,
		"minZoom", a.info.ZoomRange.Min,
		"maxZoom", a.info.ZoomRange.Max,
		"hasBounds", a.info.Bounds != nil,
	)
	return a, nil
}

// readMetadata loads the metadata table, derives the zoom range from the
// distinct zoom levels actually present (authoritative over any declared
// default), and counts tiles.
func (a *Archive) readMetadata() error {
	var rows []metadataRow
	if err := a.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("%w: reading metadata table: %v", ErrCorruptArchive, err)
	}
	a.meta = make(map[string]string, len(rows))
	for _, r := range rows {
		a.meta[r.Name] = r.Value
	}

	if raw, ok := a.meta["bounds"]; ok {
		b, err := geo.ParseBounds(raw)
		if err != nil {
			// A bad bounds value degrades to "no bounds known", it does
			// not fail the load.
			a.log.Warn("Ignoring malformed bounds metadata", "bounds", raw, "error", err)
		} else {
			a.info.Bounds = &b
		}
	}

	var zooms []int
	if err := a.db.Model(&tileRow{}).Distinct("zoom_level").Order("zoom_level").Pluck("zoom_level", &zooms).Error; err != nil {
		return fmt.Errorf("%w: reading tiles table: %v", ErrCorruptArchive, err)
	}
	if len(zooms) == 0 {
		return fmt.Errorf("%w: archive contains no tiles", ErrCorruptArchive)
	}
	minZoom, maxZoom := zooms[0], zooms[0]
	for _, z := range zooms[1:] {
		if z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
	}
	if maxZoom > maxZoomCeiling {
		maxZoom = maxZoomCeiling
	}
	a.info.ZoomRange = core.ZoomRange{Min: minZoom, Max: maxZoom}

	if err := a.db.Model(&tileRow{}).Count(&a.info.TileCount).Error; err != nil {
		return fmt.Errorf("%w: counting tiles: %v", ErrCorruptArchive, err)
	}
	return nil
}

// Info returns the archive metadata.
func (a *Archive) Info() Info {
	return a.info
}

// MetadataValue returns a raw metadata value by name.
func (a *Archive) MetadataValue(name string) (string, bool) {
	v, ok := a.meta[name]
	return v, ok
}

// Tile looks up one tile by archive (TMS) coordinates. A miss is not an
// error; it returns ok=false and the caller serves the fallback image.
func (a *Archive) Tile(key core.TileKey) ([]byte, bool) {
	var row tileRow
	err := a.db.
		Where("zoom_level = ? AND tile_column = ? AND tile_row = ?", key.Zoom, key.Column, key.Row).
		Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			a.log.Debug("Tile lookup failed", "zoom", key.Zoom, "column", key.Column, "row", key.Row, "error", err)
		}
		return nil, false
	}
	if len(row.TileData) == 0 {
		return nil, false
	}
	return row.TileData, true
}

// Close releases the database handle and removes the backing temp file if
// the archive was opened from a byte buffer.
func (a *Archive) Close() error {
	err := a.closeDB()
	if a.temp {
		if rmErr := os.Remove(a.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

func (a *Archive) closeDB() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
