package feed

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"tacmap/pkg/core"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func kill(attacker, victim string, offset time.Duration) core.KillEvent {
	return core.KillEvent{
		AttackerID: attacker,
		VictimID:   victim,
		Timestamp:  epoch.Add(offset),
	}
}

func testAggregator() *Aggregator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecordKill_CapMostRecentFirst(t *testing.T) {
	a := testAggregator()
	for i := 0; i < 15; i++ {
		a.RecordKill(kill(fmt.Sprintf("a%d", i), "v", time.Duration(i)*time.Minute))
	}

	st := a.State()
	if st.TotalKills != 15 {
		t.Errorf("expected 15 total kills, got %d", st.TotalKills)
	}
	if len(st.Entries) != 10 {
		t.Fatalf("feed must cap at 10, got %d", len(st.Entries))
	}
	if st.Entries[0].AttackerID != "a14" {
		t.Errorf("newest entry first, got %q", st.Entries[0].AttackerID)
	}
	if st.Entries[9].AttackerID != "a5" {
		t.Errorf("oldest visible entry must be a5, got %q", st.Entries[9].AttackerID)
	}
}

func TestRecordKill_DropsIncomplete(t *testing.T) {
	a := testAggregator()
	a.RecordKill(core.KillEvent{AttackerID: "a", Timestamp: epoch})
	a.RecordKill(core.KillEvent{VictimID: "v", Timestamp: epoch})

	if st := a.State(); st.TotalKills != 0 {
		t.Errorf("incomplete events must be dropped, got %d", st.TotalKills)
	}
}

func TestStreak_WithinWindow(t *testing.T) {
	a := testAggregator()
	a.RecordKill(kill("a1", "v1", 0))
	a.RecordKill(kill("a1", "v2", 3000*time.Millisecond))

	st := a.State()
	if st.Streaks["a1"] != 2 {
		t.Errorf("second kill 3000 ms later must extend the streak, got %d", st.Streaks["a1"])
	}
}

func TestStreak_OutsideWindow(t *testing.T) {
	a := testAggregator()
	a.RecordKill(kill("a1", "v1", 0))
	a.RecordKill(kill("a1", "v2", 8000*time.Millisecond))

	st := a.State()
	if _, ok := st.Streaks["a1"]; ok {
		t.Errorf("8000 ms gap must break the streak, got %d", st.Streaks["a1"])
	}
}

func TestStreak_PerAttacker(t *testing.T) {
	a := testAggregator()
	a.RecordKill(kill("a1", "v1", 0))
	a.RecordKill(kill("a2", "v2", 1*time.Second))
	a.RecordKill(kill("a1", "v3", 4*time.Second))

	st := a.State()
	if st.Streaks["a1"] != 2 {
		t.Errorf("a1 streak must survive an interleaved kill by a2, got %d", st.Streaks["a1"])
	}
	if _, ok := st.Streaks["a2"]; ok {
		t.Error("a2 has a single kill, no streak")
	}
}

func TestRecordStats_SumsDeltas(t *testing.T) {
	a := testAggregator()
	a.RecordStats(core.StatsEvent{Team: core.TeamRed, Kills: 1, Bullets: 40, Timestamp: epoch})
	a.RecordStats(core.StatsEvent{Team: core.TeamRed, Kills: 3, Bullets: 120, Timestamp: epoch.Add(time.Minute)})
	a.RecordStats(core.StatsEvent{Team: core.TeamBlue, Kills: 2, Bullets: 80, Timestamp: epoch})

	st := a.State()
	if got := st.Teams[core.TeamRed]; got != (core.TeamStats{Killed: 4, Fired: 160}) {
		t.Errorf("red counters: %+v", got)
	}
	if got := st.Teams[core.TeamBlue]; got != (core.TeamStats{Killed: 2, Fired: 80}) {
		t.Errorf("blue counters: %+v", got)
	}
}

func TestComputeAt_TeamCountersNeverDrop(t *testing.T) {
	h := core.History{
		Stats: []core.StatsEvent{
			{Team: core.TeamRed, Kills: 3, Bullets: 30, Timestamp: epoch},
			{Team: core.TeamRed, Kills: 1, Bullets: 10, Timestamp: epoch.Add(10 * time.Second)},
		},
	}

	early := ComputeAt(h, epoch.Add(5*time.Second))
	if got := early.Teams[core.TeamRed]; got != (core.TeamStats{Killed: 3, Fired: 30}) {
		t.Errorf("counters at T1: %+v", got)
	}
	late := ComputeAt(h, epoch.Add(15*time.Second))
	if got := late.Teams[core.TeamRed]; got != (core.TeamStats{Killed: 4, Fired: 40}) {
		t.Errorf("counters at T2: %+v", got)
	}
}

func replayHistory() core.History {
	return core.History{
		Kills: []core.KillEvent{
			kill("a1", "v1", 0),
			kill("a1", "v2", 2*time.Second),
			kill("a2", "v3", 30*time.Second),
		},
		Stats: []core.StatsEvent{
			{Team: core.TeamRed, Kills: 1, Bullets: 10, Timestamp: epoch},
			{Team: core.TeamRed, Kills: 2, Bullets: 55, Timestamp: epoch.Add(10 * time.Second)},
		},
	}
}

func TestComputeAt_Pure(t *testing.T) {
	h := replayHistory()
	at := epoch.Add(15 * time.Second)

	first := ComputeAt(h, at)
	second := ComputeAt(h, at)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated derivation diverged: %+v vs %+v", first, second)
	}
}

func TestComputeAt_FiltersByTime(t *testing.T) {
	h := replayHistory()

	early := ComputeAt(h, epoch.Add(1*time.Second))
	if early.TotalKills != 1 {
		t.Errorf("one kill by t=1s, got %d", early.TotalKills)
	}
	if got := early.Teams[core.TeamRed]; got != (core.TeamStats{Killed: 1, Fired: 10}) {
		t.Errorf("early red counters: %+v", got)
	}

	late := ComputeAt(h, epoch.Add(time.Hour))
	if late.TotalKills != 3 {
		t.Errorf("all kills by t=1h, got %d", late.TotalKills)
	}
	if late.Streaks["a1"] != 2 {
		t.Errorf("a1 streak must be rederived, got %d", late.Streaks["a1"])
	}
	if got := late.Teams[core.TeamRed]; got != (core.TeamStats{Killed: 3, Fired: 65}) {
		t.Errorf("late red counters: %+v", got)
	}
}

func TestComputeAt_MonotonicTotals(t *testing.T) {
	h := replayHistory()
	prev := -1
	for s := 0; s <= 60; s += 5 {
		st := ComputeAt(h, epoch.Add(time.Duration(s)*time.Second))
		if st.TotalKills < prev {
			t.Fatalf("total kills regressed at t=%ds: %d < %d", s, st.TotalKills, prev)
		}
		prev = st.TotalKills
	}
}

func TestComputeAt_MatchesLiveAccumulation(t *testing.T) {
	h := replayHistory()

	a := testAggregator()
	for _, k := range h.Kills {
		a.RecordKill(k)
	}
	for _, s := range h.Stats {
		a.RecordStats(s)
	}

	live := a.State()
	replayed := ComputeAt(h, epoch.Add(time.Hour))
	if !reflect.DeepEqual(live, replayed) {
		t.Errorf("live and replay derivations diverged:\nlive:   %+v\nreplay: %+v", live, replayed)
	}
}
