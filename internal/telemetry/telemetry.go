package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tacmap/internal/config"
	"tacmap/pkg/core"
)

// Feed names, also the keys of the status map.
const (
	FeedSoldiers = "soldiers"
	FeedKills    = "kill_feed"
	FeedStats    = "stats"
)

// Sink receives decoded feed traffic.
type Sink struct {
	Soldiers func([]core.SoldierUpdate)
	Kill     func(core.KillEvent)
	Stats    func(core.StatsEvent)
}

// Feeds runs the three backend feed clients and fans decoded messages
// into the sink. Messages that fail to decode are dropped and logged,
// one at a time; a bad frame never takes a feed down.
type Feeds struct {
	soldiers *Client
	kills    *Client
	stats    *Client
	log      *slog.Logger
}

func NewFeeds(cfg config.FeedConfig, sink Sink, log *slog.Logger) *Feeds {
	f := &Feeds{log: log}
	f.soldiers = NewClient(FeedSoldiers, cfg.SoldierURL, cfg.ReconnectDelay, func(data []byte) {
		updates, err := ParseSoldierMessage(data)
		if err != nil {
			log.Warn("Dropping undecodable soldier message", "error", err)
			return
		}
		sink.Soldiers(updates)
	}, log)
	f.kills = NewClient(FeedKills, cfg.KillFeedURL, cfg.ReconnectDelay, func(data []byte) {
		event, err := ParseKillMessage(data)
		if err != nil {
			log.Warn("Dropping undecodable kill message", "error", err)
			return
		}
		sink.Kill(event)
	}, log)
	f.stats = NewClient(FeedStats, cfg.StatsURL, cfg.ReconnectDelay, func(data []byte) {
		event, err := ParseStatsMessage(data)
		if err != nil {
			log.Warn("Dropping undecodable stats message", "error", err)
			return
		}
		sink.Stats(event)
	}, log)
	return f
}

// Run blocks until the context ends.
func (f *Feeds) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range []*Client{f.soldiers, f.kills, f.stats} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Run(ctx)
		}(c)
	}
	wg.Wait()
}

// Statuses returns the passive per-feed connection state.
func (f *Feeds) Statuses() map[string]Status {
	return map[string]Status{
		FeedSoldiers: f.soldiers.Status(),
		FeedKills:    f.kills.Status(),
		FeedStats:    f.stats.Status(),
	}
}

// ParseSoldierMessage decodes one soldier feed frame. The backend sends
// one entity object per message; an array of updates is also accepted
// for batching backends. Entries missing timestamps get the receive
// time, so recorded sessions stay replayable even from backends that
// omit them.
func ParseSoldierMessage(data []byte) ([]core.SoldierUpdate, error) {
	var updates []core.SoldierUpdate
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("[")) {
		if err := json.Unmarshal(data, &updates); err != nil {
			return nil, fmt.Errorf("invalid soldier frame: %w", err)
		}
	} else {
		var single core.SoldierUpdate
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("invalid soldier frame: %w", err)
		}
		updates = []core.SoldierUpdate{single}
	}
	now := time.Now().UTC()
	for i := range updates {
		if updates[i].Timestamp.IsZero() {
			updates[i].Timestamp = now
		}
	}
	return updates, nil
}

// ParseKillMessage decodes one kill feed frame.
func ParseKillMessage(data []byte) (core.KillEvent, error) {
	var event core.KillEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("invalid kill frame: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event, nil
}

// ParseStatsMessage decodes one stats feed frame.
func ParseStatsMessage(data []byte) (core.StatsEvent, error) {
	var event core.StatsEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("invalid stats frame: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event, nil
}
