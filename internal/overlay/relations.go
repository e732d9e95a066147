package overlay

import (
	"tacmap/internal/geo"
	"tacmap/pkg/core"
)

// Relation is one distance line from the reference entity to another
// entity, with its display label anchored at the midpoint.
type Relation struct {
	ID             string        `json:"id"`
	From           core.Position `json:"from"`
	To             core.Position `json:"to"`
	DistanceMeters float64       `json:"distanceMeters"`
	Label          string        `json:"label"`
	Midpoint       core.Position `json:"midpoint"`
	Color          string        `json:"color"`
}

// relationsLocked computes distance relations from the reference entity to
// every other in-bounds entity. No lines at all when the reference is
// unset, unknown, has no position, or is itself out of bounds.
func (o *Overlay) relationsLocked() []Relation {
	if o.referenceID == "" {
		return nil
	}
	ref, ok := o.soldiers[o.referenceID]
	if !ok || ref.Position == nil {
		return nil
	}
	if _, oob := o.outOfBounds[o.referenceID]; oob {
		return nil
	}
	from := *ref.Position

	var out []Relation
	for _, s := range o.soldiers {
		if s.ID == o.referenceID || s.Position == nil {
			continue
		}
		if _, oob := o.outOfBounds[s.ID]; oob {
			continue
		}
		to := *s.Position
		d := geo.Haversine(from, to)
		out = append(out, Relation{
			ID:             s.ID,
			From:           from,
			To:             to,
			DistanceMeters: d,
			Label:          geo.FormatDistance(d),
			Midpoint:       geo.Midpoint(from, to),
			Color:          o.colors[s.ID],
		})
	}

	// Stable order for clients and tests.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
