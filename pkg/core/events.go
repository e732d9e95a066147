package core

import "time"

// KillEvent is one elimination reported by the exercise backend.
type KillEvent struct {
	AttackerID       string    `json:"attacker_id"`
	VictimID         string    `json:"victim_id"`
	AttackerCallSign string    `json:"attacker_call_sign"`
	VictimCallSign   string    `json:"victim_call_sign"`
	DistanceMeters   float64   `json:"distance_to_victim_meters"`
	Timestamp        time.Time `json:"timestamp"`
}

// StatsEvent is one per-team counter delta reported by the exercise backend.
type StatsEvent struct {
	Team      Team      `json:"team"`
	Kills     int       `json:"kills"`
	Bullets   int       `json:"bullets"`
	Timestamp time.Time `json:"timestamp"`
}

// TeamStats holds cumulative counters for one team.
type TeamStats struct {
	Killed int `json:"killed"`
	Fired  int `json:"fired"`
}

// History is a session's full recorded event stream, consumed wholesale for
// replay. Slices are ordered by arrival; replay derivation filters by
// timestamp, so a stable order is all that is required.
type History struct {
	Soldiers []SoldierUpdate `json:"soldiers"`
	Kills    []KillEvent     `json:"kills"`
	Stats    []StatsEvent    `json:"stats"`
}

// Start returns the earliest timestamp present in any stream, or the zero
// time if the history is empty.
func (h History) Start() time.Time {
	var first time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
	}
	for _, s := range h.Soldiers {
		consider(s.Timestamp)
	}
	for _, k := range h.Kills {
		consider(k.Timestamp)
	}
	for _, s := range h.Stats {
		consider(s.Timestamp)
	}
	return first
}

// Duration returns the span between the earliest and latest timestamps in
// the history. An empty history has zero duration.
func (h History) Duration() time.Duration {
	start := h.Start()
	if start.IsZero() {
		return 0
	}
	var last time.Time
	for _, s := range h.Soldiers {
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}
	for _, k := range h.Kills {
		if k.Timestamp.After(last) {
			last = k.Timestamp
		}
	}
	for _, s := range h.Stats {
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}
	return last.Sub(start)
}
