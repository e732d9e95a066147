// Package server is the HTTP face of the dashboard: tile delivery, the
// REST control surface, and the browser websocket hub. It also owns the
// live/replay mode switch; both modes feed the same hub message types,
// so the frontend renders them identically.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tacmap/internal/config"
	"tacmap/internal/dispatcher"
	"tacmap/internal/feed"
	"tacmap/internal/hub"
	"tacmap/internal/influx"
	"tacmap/internal/overlay"
	"tacmap/internal/replay"
	"tacmap/internal/session"
	"tacmap/internal/telemetry"
	"tacmap/internal/tiles"
	"tacmap/pkg/core"
)

// Mode is the dashboard's current source of truth.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeReplay Mode = "replay"
)

// Topics routed through the dispatcher.
const (
	topicSoldiers = "soldiers"
	topicKills    = "kill_feed"
	topicStats    = "stats"
)

// broadcastInterval paces frame pushes to browsers in live mode, and
// replay ticks in replay mode.
const broadcastInterval = 250 * time.Millisecond

// Server wires every subsystem together behind one HTTP surface.
type Server struct {
	cfg config.Config

	provider *tiles.Provider
	overlay  *overlay.Overlay
	agg      *feed.Aggregator
	replayer *replay.Controller
	store    *session.Store
	recorder *session.Recorder
	metrics  *influx.Manager
	feeds    *telemetry.Feeds
	hub      *hub.Hub
	disp     *dispatcher.Dispatcher

	mu       sync.Mutex
	mode     Mode
	progress tiles.Progress

	log *slog.Logger
}

// Options carries the optional subsystems. Store and Recorder may be nil
// when the database is unavailable; Metrics may be nil when the exporter
// is disabled. The dashboard still runs live either way.
type Options struct {
	Store    *session.Store
	Recorder *session.Recorder
	Metrics  *influx.Manager
}

// New builds the server and registers the dispatcher routes. The
// telemetry feeds are constructed here so their sink lands on the
// dispatcher rather than on the subsystems directly.
func New(cfg config.Config, log *slog.Logger, opts Options) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		provider: tiles.NewProvider(log),
		overlay:  overlay.New(log),
		agg:      feed.New(log),
		replayer: replay.New(log),
		store:    opts.Store,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		hub:      hub.New(log),
		mode:     ModeLive,
		log:      log,
	}

	d, err := dispatcher.New(slogAdapter{log})
	if err != nil {
		return nil, err
	}
	s.disp = d

	d.Register(topicSoldiers, func(e dispatcher.Event) error {
		updates := e.Payload.([]core.SoldierUpdate)
		s.overlay.ApplyTelemetry(updates)
		if s.recorder != nil {
			s.recorder.RecordSoldiers(updates)
		}
		return nil
	}, dispatcher.Buffered(1024))

	d.Register(topicKills, func(e dispatcher.Event) error {
		event := e.Payload.(core.KillEvent)
		s.agg.RecordKill(event)
		if s.recorder != nil {
			s.recorder.RecordKill(event)
		}
		if s.metrics != nil {
			if err := s.metrics.WriteKill(context.Background(), event); err != nil {
				s.log.Warn("Kill metric write failed", "error", err)
			}
		}
		if s.Mode() == ModeLive {
			s.hub.Broadcast(hub.TypeKillFeed, s.agg.State())
		}
		return nil
	}, dispatcher.Buffered(256))

	d.Register(topicStats, func(e dispatcher.Event) error {
		event := e.Payload.(core.StatsEvent)
		s.agg.RecordStats(event)
		if s.recorder != nil {
			s.recorder.RecordStats(event)
		}
		if s.metrics != nil {
			stats := core.TeamStats{Killed: event.Kills, Fired: event.Bullets}
			if err := s.metrics.WriteTeamStats(context.Background(), event.Team, stats, event.Timestamp); err != nil {
				s.log.Warn("Stats metric write failed", "error", err)
			}
		}
		if s.Mode() == ModeLive {
			s.hub.Broadcast(hub.TypeStats, s.agg.State())
		}
		return nil
	}, dispatcher.Buffered(256))

	s.feeds = telemetry.NewFeeds(cfg.Feeds, telemetry.Sink{
		Soldiers: func(u []core.SoldierUpdate) {
			s.dispatch(topicSoldiers, u)
		},
		Kill: func(e core.KillEvent) {
			s.dispatch(topicKills, e)
		},
		Stats: func(e core.StatsEvent) {
			s.dispatch(topicStats, e)
		},
	}, log)

	return s, nil
}

func (s *Server) dispatch(topic string, payload any) {
	err := s.disp.Dispatch(dispatcher.Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("Dropped event", "topic", topic, "error", err)
	}
}

// Mode returns the current dashboard mode.
func (s *Server) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Server) setMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// LoadArchiveFile opens an MBTiles file from disk and installs it.
func (s *Server) LoadArchiveFile(path string) error {
	archive, err := tiles.OpenFile(path, s.log)
	if err != nil {
		return err
	}
	s.installArchive(archive)
	return nil
}

// FetchArchive downloads the archive with progress reporting and
// installs it when complete. Progress is mirrored to browsers and to
// the progress endpoint.
func (s *Server) FetchArchive(ctx context.Context, url string) {
	progressCh, resultCh := tiles.FetchArchive(ctx, http.DefaultClient, url, s.log)
	for p := range progressCh {
		s.mu.Lock()
		s.progress = p
		s.mu.Unlock()
		s.hub.Broadcast(hub.TypeProgress, p)
	}
	res := <-resultCh
	if res.Err != nil {
		s.log.Error("Archive download failed", "url", url, "error", res.Err)
		return
	}
	s.installArchive(res.Archive)
}

// installArchive swaps the tile source and resets all map-derived state
// to the new extent.
func (s *Server) installArchive(archive *tiles.Archive) {
	s.provider.SetArchive(archive)

	info := archive.Info()
	s.overlay.SetBounds(info.Bounds)

	view, ok := s.provider.FitView(s.cfg.Viewport.Width, s.cfg.Viewport.Height)
	if ok {
		s.overlay.SetViewCenter(view.Center)
		s.replayer.SetView(info.Bounds, view.Center)
	}

	s.hub.Broadcast(hub.TypeSessionData, s.sessionData())
	s.log.Info("Tile archive installed",
		"tiles", info.TileCount,
		"minZoom", info.ZoomRange.Min,
		"maxZoom", info.ZoomRange.Max)
}

// sessionData is the hub payload describing what is being viewed.
func (s *Server) sessionData() map[string]any {
	data := map[string]any{
		"mode": s.Mode(),
	}
	if info, ok := s.provider.Info(); ok {
		data["map"] = info
		if view, ok := s.provider.FitView(s.cfg.Viewport.Width, s.cfg.Viewport.Height); ok {
			data["view"] = view
		}
	}
	if s.Mode() == ModeReplay {
		_, total := s.replayer.Position()
		data["durationMs"] = total.Milliseconds()
	}
	return data
}

// Run starts the background loops and blocks until the context ends.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.feeds.Run(ctx)
	}()

	if s.recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recorder.Run(ctx, session.DefaultFlushInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.broadcastLoop(ctx)
	}()

	if s.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.metricsLoop(ctx)
		}()
	}

	if s.cfg.Archive.URL != "" && s.cfg.Archive.Path == "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.FetchArchive(ctx, s.cfg.Archive.URL)
		}()
	}

	<-ctx.Done()
	s.hub.Shutdown(context.Background())
	wg.Wait()
}

// metricsInterval paces entity-count exports. Kills and stats are
// written as they arrive; counts are a gauge and only need sampling.
const metricsInterval = 15 * time.Second

// metricsLoop samples tracked and out-of-bounds entity counts while the
// dashboard is in live mode.
func (s *Server) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Mode() != ModeLive {
				continue
			}
			snap := s.overlay.Snapshot()
			oob := 0
			for _, m := range snap.Markers {
				if m.Kind == overlay.MarkerOutOfBounds {
					oob++
				}
			}
			if err := s.metrics.WriteEntityCounts(ctx, len(snap.Markers), oob, time.Now().UTC()); err != nil {
				s.log.Warn("Entity count metric write failed", "error", err)
			}
		}
	}
}

// broadcastLoop pushes the current frame to browsers at a fixed pace.
// In replay mode it also advances the timeline.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch s.Mode() {
			case ModeLive:
				s.hub.Broadcast(hub.TypeFrameData, liveFrame(s.overlay.Snapshot(), s.agg.State()))
			case ModeReplay:
				if s.replayer.Tick() {
					s.hub.Broadcast(hub.TypeFrameData, s.replayer.Frame())
				}
			}
		}
	}
}

// liveFrame mirrors the replay Frame shape so the frontend renders both
// modes with the same code path.
func liveFrame(snap overlay.Snapshot, st feed.State) replay.Frame {
	return replay.Frame{
		Playing: true,
		Rate:    1,
		Overlay: snap,
		Feed:    st,
	}
}

// slogAdapter satisfies the dispatcher's Logger interface.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Debug(msg string, keysAndValues ...any) { a.log.Debug(msg, keysAndValues...) }
func (a slogAdapter) Info(msg string, keysAndValues ...any)  { a.log.Info(msg, keysAndValues...) }
func (a slogAdapter) Error(msg string, keysAndValues ...any) { a.log.Error(msg, keysAndValues...) }
