// Package overlay maintains the live map state: one marker per tracked
// soldier, movement trails, deterministic colors, out-of-bounds handling,
// and distance relations from a reference entity. It is a pure in-memory
// registry keyed by entity id; rendering happens client-side from
// snapshots.
package overlay

import (
	"log/slog"
	"sort"
	"sync"

	"tacmap/pkg/core"
)

// MarkerKind distinguishes the two mutually exclusive marker styles an
// entity can have at any instant.
type MarkerKind string

const (
	// MarkerNormal is the regular position marker.
	MarkerNormal MarkerKind = "normal"
	// MarkerOutOfBounds is the flickering alert marker pinned to the view
	// center. An entity whose fix falls outside the archive bounds keeps
	// its real coordinate in TruePosition but is deliberately NOT drawn
	// there: one bad GPS fix must not scroll the map off into the ocean.
	// The operator still sees the true coordinate in the marker detail.
	MarkerOutOfBounds MarkerKind = "out_of_bounds"
)

// Marker is the renderable state of one entity.
type Marker struct {
	ID           string         `json:"id"`
	Kind         MarkerKind     `json:"kind"`
	Position     core.Position  `json:"position"`
	TruePosition *core.Position `json:"truePosition,omitempty"`
	Heading      float64        `json:"heading"`
	Color        string         `json:"color"`
	BaseColor    string         `json:"baseColor"`
	Team         core.Team      `json:"team"`
	CallSign     string         `json:"callSign"`
	Hit          bool           `json:"hit"`
	Dimmed       bool           `json:"dimmed"`
}

// Snapshot is a self-contained view of the overlay at one instant,
// broadcast to map clients.
type Snapshot struct {
	Markers     []Marker                   `json:"markers"`
	Trails      map[string][]core.Position `json:"trails"`
	Relations   []Relation                 `json:"relations"`
	ReferenceID string                     `json:"referenceId,omitempty"`
}

// Overlay is the marker/trail/relation registry for one view. All state is
// keyed by entity id: existing entries are mutated in place, new ids get
// fresh entries, nothing is ever deleted within a session.
type Overlay struct {
	mu sync.Mutex

	soldiers    map[string]*core.Soldier
	trails      map[string][]core.Position
	colors      map[string]string
	outOfBounds map[string]core.Position // id -> true (out of range) position

	bounds      *core.BoundingBox
	viewCenter  core.Position
	referenceID string

	log *slog.Logger
}

// New creates an empty overlay.
func New(log *slog.Logger) *Overlay {
	return &Overlay{
		soldiers:    make(map[string]*core.Soldier),
		trails:      make(map[string][]core.Position),
		colors:      make(map[string]string),
		outOfBounds: make(map[string]core.Position),
		log:         log,
	}
}

// SetBounds installs the archive bounding box and reflags every known
// entity. A nil box clears all out-of-bounds flags: with no bounds known,
// nothing is ever flagged.
func (o *Overlay) SetBounds(b *core.BoundingBox) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.bounds = b
	o.outOfBounds = make(map[string]core.Position)
	if b == nil {
		return
	}
	for id, s := range o.soldiers {
		if s.Position != nil && !b.Contains(*s.Position) {
			o.outOfBounds[id] = *s.Position
		}
	}
}

// SetViewCenter records the client's current map center, where alert
// markers for out-of-bounds entities are pinned.
func (o *Overlay) SetViewCenter(p core.Position) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.viewCenter = p
}

// SetReference selects the distance-measurement origin and focus entity.
// An empty id clears the selection.
func (o *Overlay) SetReference(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.referenceID = id
}

// ApplyTelemetry upserts a batch of entity updates. The call is
// idempotent: reapplying an identical batch changes neither marker state
// nor trail lengths. Malformed entries are skipped individually and
// logged; they never abort the rest of the batch.
func (o *Overlay) ApplyTelemetry(updates []core.SoldierUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, u := range updates {
		if !u.Valid() {
			o.log.Warn("Skipping invalid telemetry entry", "soldierID", u.ID)
			continue
		}
		o.applyOneLocked(u)
	}
}

func (o *Overlay) applyOneLocked(u core.SoldierUpdate) {
	pos := core.Position{Latitude: *u.GPS.Latitude, Longitude: *u.GPS.Longitude}

	s, ok := o.soldiers[u.ID]
	if !ok {
		s = &core.Soldier{ID: u.ID}
		o.soldiers[u.ID] = s
		o.colors[u.ID] = colorForID(u.ID)
	}

	// Last write wins per id; the newest message is authoritative.
	s.Team = u.Team
	s.CallSign = u.CallSign
	s.Hit = u.Hit
	s.Position = &pos
	if u.IMU != nil {
		s.Heading = u.IMU.Yaw
	}
	s.UpdatedAt = u.Timestamp

	trail := o.trails[u.ID]
	if len(trail) == 0 || trail[len(trail)-1] != pos {
		o.trails[u.ID] = append(trail, pos)
	}

	if o.bounds != nil && !o.bounds.Contains(pos) {
		o.outOfBounds[u.ID] = pos
	} else {
		delete(o.outOfBounds, u.ID)
	}
}

// Color returns the session-stable color assigned to an id. Ids never seen
// by ApplyTelemetry get their would-be assignment without caching it.
func (o *Overlay) Color(id string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.colors[id]; ok {
		return c
	}
	return colorForID(id)
}

// Snapshot derives the full renderable state. Markers are sorted by id for
// stable output; relation entries are keyed per id so a newer snapshot
// cleanly replaces the previous one client-side.
func (o *Overlay) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Trails:      make(map[string][]core.Position),
		ReferenceID: o.referenceID,
	}

	ids := make([]string, 0, len(o.soldiers))
	for id := range o.soldiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	focused := o.referenceID != ""

	for _, id := range ids {
		s := o.soldiers[id]
		if s.Position == nil {
			continue
		}

		base := o.colors[id]
		color := base
		if s.Hit {
			color = AlertColor
		}

		if truePos, oob := o.outOfBounds[id]; oob {
			tp := truePos
			snap.Markers = append(snap.Markers, Marker{
				ID:           id,
				Kind:         MarkerOutOfBounds,
				Position:     o.viewCenter,
				TruePosition: &tp,
				Heading:      s.Heading,
				Color:        color,
				BaseColor:    base,
				Team:         s.Team,
				CallSign:     s.CallSign,
				Hit:          s.Hit,
			})
			// Out-of-bounds entities get no trail and no distance line.
			continue
		}

		snap.Markers = append(snap.Markers, Marker{
			ID:        id,
			Kind:      MarkerNormal,
			Position:  *s.Position,
			Heading:   s.Heading,
			Color:     color,
			BaseColor: base,
			Team:      s.Team,
			CallSign:  s.CallSign,
			Hit:       s.Hit,
			Dimmed:    focused && id != o.referenceID,
		})

		if !focused || id == o.referenceID {
			trail := o.trails[id]
			out := make([]core.Position, len(trail))
			copy(out, trail)
			snap.Trails[id] = out
		}
	}

	snap.Relations = o.relationsLocked()
	return snap
}

// Soldiers returns a copy of the current entity map, for recording and
// metrics export.
func (o *Overlay) Soldiers() []core.Soldier {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]core.Soldier, 0, len(o.soldiers))
	for _, s := range o.soldiers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrailLen returns the number of recorded points for an id.
func (o *Overlay) TrailLen(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trails[id])
}

// OutOfBounds reports whether the entity is currently flagged.
func (o *Overlay) OutOfBounds(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.outOfBounds[id]
	return ok
}

// Reset clears all registries. Used when a view is torn down or a replay
// re-derivation starts from scratch.
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.soldiers = make(map[string]*core.Soldier)
	o.trails = make(map[string][]core.Position)
	o.colors = make(map[string]string)
	o.outOfBounds = make(map[string]core.Position)
	o.referenceID = ""
}
