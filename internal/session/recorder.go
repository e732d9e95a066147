package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tacmap/internal/queue"
	"tacmap/pkg/core"
)

// DefaultFlushInterval is how often the recorder drains its buffers to
// the store.
const DefaultFlushInterval = 2 * time.Second

// Recorder buffers live events and flushes them to the store in batches.
// Record calls never block on the database.
type Recorder struct {
	store *Store

	soldiers *queue.Queue[SoldierHistory]
	kills    *queue.Queue[KillFeedHistory]
	stats    *queue.Queue[StatsHistory]

	sessionID uint
	log       *slog.Logger
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		soldiers: queue.New[SoldierHistory](),
		kills:    queue.New[KillFeedHistory](),
		stats:    queue.New[StatsHistory](),
		log:      log,
	}
}

// Start opens a new session. Any buffered rows from a previous session
// are discarded.
func (r *Recorder) Start(name string, at time.Time) error {
	sess, err := r.store.Begin(name, at)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	r.soldiers.Clear()
	r.kills.Clear()
	r.stats.Clear()
	r.sessionID = sess.ID
	return nil
}

// SessionID returns the active session id, zero when not recording.
func (r *Recorder) SessionID() uint {
	return r.sessionID
}

// RecordSoldiers buffers a telemetry batch.
func (r *Recorder) RecordSoldiers(updates []core.SoldierUpdate) {
	if r.sessionID == 0 {
		return
	}
	for _, u := range updates {
		payload, err := json.Marshal(u)
		if err != nil {
			r.log.Warn("Failed to encode soldier update", "soldierID", u.ID, "error", err)
			continue
		}
		r.soldiers.Push(SoldierHistory{
			SessionID: r.sessionID,
			SoldierID: u.ID,
			Timestamp: u.Timestamp,
			Payload:   payload,
		})
	}
}

// RecordKill buffers one kill event.
func (r *Recorder) RecordKill(e core.KillEvent) {
	if r.sessionID == 0 {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		r.log.Warn("Failed to encode kill event", "error", err)
		return
	}
	r.kills.Push(KillFeedHistory{
		SessionID: r.sessionID,
		Timestamp: e.Timestamp,
		Payload:   payload,
	})
}

// RecordStats buffers one stats event.
func (r *Recorder) RecordStats(e core.StatsEvent) {
	if r.sessionID == 0 {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		r.log.Warn("Failed to encode stats event", "error", err)
		return
	}
	r.stats.Push(StatsHistory{
		SessionID: r.sessionID,
		Timestamp: e.Timestamp,
		Payload:   payload,
	})
}

// Flush drains all buffers into the store. Failed batches are logged and
// dropped rather than requeued: replaying a partially written batch would
// duplicate rows.
func (r *Recorder) Flush() {
	if batch := r.soldiers.Drain(); len(batch) > 0 {
		if err := r.store.SaveSoldierBatch(batch); err != nil {
			r.log.Error("Failed to flush soldier batch", "rows", len(batch), "error", err)
		}
	}
	if batch := r.kills.Drain(); len(batch) > 0 {
		if err := r.store.SaveKillBatch(batch); err != nil {
			r.log.Error("Failed to flush kill batch", "rows", len(batch), "error", err)
		}
	}
	if batch := r.stats.Drain(); len(batch) > 0 {
		if err := r.store.SaveStatsBatch(batch); err != nil {
			r.log.Error("Failed to flush stats batch", "rows", len(batch), "error", err)
		}
	}
}

// Run flushes periodically until the context ends, then performs a final
// flush and stamps the session end time.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Flush()
			if r.sessionID != 0 {
				if err := r.store.End(r.sessionID, time.Now().UTC()); err != nil {
					r.log.Error("Failed to close session", "sessionID", r.sessionID, "error", err)
				}
			}
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}
