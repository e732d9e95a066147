// Package replay drives after-action review of a recorded session. The
// controller is a two-state machine (stopped or playing) over an elapsed
// offset into the session; every frame is re-derived from the full history
// by filtering to timestamp <= current, never by mutating live state, so
// seeking backwards costs the same as seeking forwards.
package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tacmap/internal/feed"
	"tacmap/internal/overlay"
	"tacmap/pkg/core"
)

const (
	// MinRate and MaxRate bound SetRate.
	MinRate = 0.25
	MaxRate = 4.0

	// skipStep is the rewind / fast-forward jump distance.
	skipStep = 10 * time.Second
)

// Frame is the fully derived view at one replay instant.
type Frame struct {
	Elapsed time.Duration    `json:"elapsedMs"`
	Total   time.Duration    `json:"totalMs"`
	Playing bool             `json:"playing"`
	Rate    float64          `json:"rate"`
	Overlay overlay.Snapshot `json:"overlay"`
	Feed    feed.State       `json:"feed"`
}

// Controller owns the replay position for one loaded session.
type Controller struct {
	mu       sync.Mutex
	history  core.History
	start    time.Time
	total    time.Duration
	elapsed  time.Duration
	rate     float64
	playing  bool
	lastTick time.Time

	bounds    *core.BoundingBox
	center    core.Position
	reference string

	now func() time.Time
	log *slog.Logger
}

func New(log *slog.Logger) *Controller {
	return &Controller{rate: 1, now: time.Now, log: log}
}

// Load replaces the session under review. The position rewinds to the
// beginning and playback stops.
func (c *Controller) Load(h core.History) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = h
	c.start = h.Start()
	c.total = h.Duration()
	c.elapsed = 0
	c.playing = false
	c.log.Info("Replay session loaded",
		"soldierUpdates", len(h.Soldiers),
		"killEvents", len(h.Kills),
		"statsEvents", len(h.Stats),
		"duration", c.total)
}

// SetView passes the archive bounds and map center used for out-of-bounds
// derivation, mirroring the live overlay's configuration.
func (c *Controller) SetView(b *core.BoundingBox, center core.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bounds = b
	c.center = center
}

// SetReference selects the distance-measurement origin for derived
// frames. An empty id clears the selection.
func (c *Controller) SetReference(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reference = id
}

func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.elapsed >= c.total {
		// Play at the end restarts, like pressing play on a finished tape.
		c.elapsed = 0
	}
	c.playing = true
	c.lastTick = c.now()
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
}

// Seek moves the position to offset, clamped to [0, total]. Playback
// state is preserved.
func (c *Controller) Seek(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekLocked(offset)
}

func (c *Controller) seekLocked(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	if offset > c.total {
		offset = c.total
	}
	c.elapsed = offset
	c.lastTick = c.now()
}

// Restart rewinds to the beginning and leaves playback stopped.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = 0
	c.playing = false
	c.lastTick = c.now()
}

// SkipToEnd jumps to the final position and stops.
func (c *Controller) SkipToEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = c.total
	c.playing = false
}

func (c *Controller) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekLocked(c.elapsed - skipStep)
}

func (c *Controller) FastForward() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekLocked(c.elapsed + skipStep)
}

// SetRate sets the playback speed, clamped to [MinRate, MaxRate].
func (c *Controller) SetRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate < MinRate {
		rate = MinRate
	}
	if rate > MaxRate {
		rate = MaxRate
	}
	c.rate = rate
}

// Playing reports whether the controller is currently advancing.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position returns the current offset and the session length.
func (c *Controller) Position() (elapsed, total time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed, c.total
}

// Tick advances the position by the wall-clock time since the previous
// tick, scaled by the playback rate. Reaching the end of the session
// stops playback. Returns true if the position moved.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return false
	}
	now := c.now()
	delta := now.Sub(c.lastTick)
	c.lastTick = now
	if delta <= 0 {
		return false
	}
	c.elapsed += time.Duration(float64(delta) * c.rate)
	if c.elapsed >= c.total {
		c.elapsed = c.total
		c.playing = false
	}
	return true
}

// Frame derives the complete view at the current position.
func (c *Controller) Frame() Frame {
	c.mu.Lock()
	h := c.history
	start := c.start
	elapsed, total := c.elapsed, c.total
	playing, rate := c.playing, c.rate
	bounds, center := c.bounds, c.center
	reference := c.reference
	log := c.log
	c.mu.Unlock()

	at := start.Add(elapsed)

	ov := overlay.New(log)
	ov.SetBounds(bounds)
	ov.SetViewCenter(center)
	ov.SetReference(reference)
	var updates []core.SoldierUpdate
	for _, u := range h.Soldiers {
		if !u.Timestamp.After(at) {
			updates = append(updates, u)
		}
	}
	ov.ApplyTelemetry(updates)

	return Frame{
		Elapsed: elapsed,
		Total:   total,
		Playing: playing,
		Rate:    rate,
		Overlay: ov.Snapshot(),
		Feed:    feed.ComputeAt(h, at),
	}
}

// Run ticks the controller at the given interval until the context ends,
// invoking onFrame after every tick that moved the position. A final
// frame is emitted when playback reaches the end.
func (c *Controller) Run(ctx context.Context, interval time.Duration, onFrame func(Frame)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Tick() {
				onFrame(c.Frame())
			}
		}
	}
}
