// Package feed accumulates kill events and team statistics. The same
// accumulation rule serves live operation and replay: live mode records
// events as they arrive, replay filters a session history by timestamp
// and recomputes from scratch with ComputeAt.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"tacmap/pkg/core"
)

// maxEntries caps the visible kill feed.
const maxEntries = 10

// multiKillWindow is the longest gap between two kills by the same
// attacker that still counts as a streak continuation.
const multiKillWindow = 5000 * time.Millisecond

// State is the derived kill/stats view at one instant.
type State struct {
	// Entries is most-recent-first and at most maxEntries long.
	Entries []core.KillEvent             `json:"entries"`
	Teams   map[core.Team]core.TeamStats `json:"teams"`
	// Streaks maps attacker id to its current multi-kill count. Only
	// attackers with two or more window-linked kills appear.
	Streaks map[string]int `json:"streaks,omitempty"`
	// TotalKills counts every recorded kill, not just the visible window.
	TotalKills int `json:"totalKills"`
}

// Aggregator is the live-mode accumulator. It keeps the full event
// history it has seen so the visible state can always be rebuilt with
// the canonical ComputeAt rule.
type Aggregator struct {
	mu    sync.Mutex
	kills []core.KillEvent
	stats []core.StatsEvent
	log   *slog.Logger
}

func New(log *slog.Logger) *Aggregator {
	return &Aggregator{log: log}
}

// RecordKill appends one kill event. Events without both participants
// are dropped and logged; they carry nothing renderable.
func (a *Aggregator) RecordKill(e core.KillEvent) {
	if e.AttackerID == "" || e.VictimID == "" {
		a.log.Warn("Dropping incomplete kill event",
			"attackerID", e.AttackerID, "victimID", e.VictimID)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kills = append(a.kills, e)
}

// RecordStats appends one per-team counter event.
func (a *Aggregator) RecordStats(e core.StatsEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = append(a.stats, e)
}

// State derives the current view from everything recorded so far.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return derive(a.kills, a.stats)
}

// Events returns copies of the recorded streams, ordered by arrival.
func (a *Aggregator) Events() ([]core.KillEvent, []core.StatsEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kills := make([]core.KillEvent, len(a.kills))
	copy(kills, a.kills)
	stats := make([]core.StatsEvent, len(a.stats))
	copy(stats, a.stats)
	return kills, stats
}

// Reset drops all recorded events. Used when a new session starts.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kills = nil
	a.stats = nil
}

// ComputeAt derives the feed state a viewer would have seen at instant t,
// given a session's full history. It is a pure function of its inputs:
// no accumulator state survives between calls, so seeking backwards is
// just a recomputation with a smaller t.
func ComputeAt(h core.History, t time.Time) State {
	var kills []core.KillEvent
	for _, k := range h.Kills {
		if !k.Timestamp.After(t) {
			kills = append(kills, k)
		}
	}
	var stats []core.StatsEvent
	for _, s := range h.Stats {
		if !s.Timestamp.After(t) {
			stats = append(stats, s)
		}
	}
	return derive(kills, stats)
}

// derive folds ordered event streams into a State. This is the single
// accumulation rule shared by live and replay modes.
func derive(kills []core.KillEvent, stats []core.StatsEvent) State {
	st := State{
		Teams:      map[core.Team]core.TeamStats{},
		TotalKills: len(kills),
	}

	// Counters are per-event deltas; sum them per team.
	for _, e := range stats {
		t := st.Teams[e.Team]
		t.Killed += e.Kills
		t.Fired += e.Bullets
		st.Teams[e.Team] = t
	}

	// Streaks: consecutive kills by one attacker, each within the window
	// of that attacker's previous kill.
	var lastKill = map[string]time.Time{}
	var streak = map[string]int{}
	for _, k := range kills {
		prev, ok := lastKill[k.AttackerID]
		if ok && k.Timestamp.Sub(prev) <= multiKillWindow && k.Timestamp.Sub(prev) >= 0 {
			streak[k.AttackerID]++
		} else {
			streak[k.AttackerID] = 1
		}
		lastKill[k.AttackerID] = k.Timestamp
	}
	for id, n := range streak {
		if n >= 2 {
			if st.Streaks == nil {
				st.Streaks = map[string]int{}
			}
			st.Streaks[id] = n
		}
	}

	// Visible window: newest first, capped.
	n := len(kills)
	limit := n
	if limit > maxEntries {
		limit = maxEntries
	}
	st.Entries = make([]core.KillEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		st.Entries = append(st.Entries, kills[i])
	}
	return st
}
