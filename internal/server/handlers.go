package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tacmap/internal/hub"
	"tacmap/internal/tiles"
)

// maxArchiveUpload caps POST /api/archive bodies. Tile archives for an
// exercise area run tens of megabytes; a gigabyte is already suspect.
const maxArchiveUpload = 1 << 30

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleTile serves one tile. It never errors toward the client: any
// miss or failure degrades to the transparent fallback inside the
// provider, so the map never shows broken tiles.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		z, x, y = -1, -1, -1
	}

	data := s.provider.ProvideTile(z, x, y)
	w.Header().Set("Content-Type", tiles.SniffContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          s.Mode(),
		"archiveLoaded": s.provider.Loaded(),
		"feeds":         s.feeds.Statuses(),
		"browsers":      s.hub.ClientCount(),
	})
}

func (s *Server) handleMapInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.provider.Info()
	if !ok {
		writeError(w, http.StatusNotFound, "no tile archive loaded")
		return
	}
	payload := map[string]any{"map": info}
	if view, ok := s.provider.FitView(s.cfg.Viewport.Width, s.cfg.Viewport.Height); ok {
		payload["view"] = view
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleArchiveUpload accepts a whole MBTiles blob and installs it.
func (s *Server) handleArchiveUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxArchiveUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	archive, err := tiles.OpenBytes(body, s.log)
	if err != nil {
		s.log.Warn("Rejected uploaded archive", "bytes", len(body), "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.installArchive(archive)
	writeJSON(w, http.StatusOK, map[string]any{"map": archive.Info()})
}

func (s *Server) handleArchiveProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.progress
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetReference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.overlay.SetReference(id)
	s.replayer.SetReference(id)
	writeJSON(w, http.StatusOK, map[string]string{"reference": id})
}

func (s *Server) handleClearReference(w http.ResponseWriter, r *http.Request) {
	s.overlay.SetReference("")
	s.replayer.SetReference("")
	writeJSON(w, http.StatusOK, map[string]string{"reference": ""})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	sessions, err := s.store.Sessions()
	if err != nil {
		s.log.Error("Failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleSelectSession loads a recorded session and switches to replay.
func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	history, err := s.store.LoadHistory(uint(id))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.replayer.Load(history)
	s.setMode(ModeReplay)
	s.hub.Broadcast(hub.TypeSessionData, s.sessionData())
	s.hub.Broadcast(hub.TypeFrameData, s.replayer.Frame())

	_, total := s.replayer.Position()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":  id,
		"durationMs": total.Milliseconds(),
	})
}

// handleBackToLive leaves replay mode.
func (s *Server) handleBackToLive(w http.ResponseWriter, r *http.Request) {
	s.replayer.Pause()
	s.setMode(ModeLive)
	s.hub.Broadcast(hub.TypeSessionData, s.sessionData())
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(ModeLive)})
}

func (s *Server) replayControl(w http.ResponseWriter, action func()) {
	if s.Mode() != ModeReplay {
		writeError(w, http.StatusConflict, "not in replay mode")
		return
	}
	action()
	frame := s.replayer.Frame()
	s.hub.Broadcast(hub.TypeFrameData, frame)
	writeJSON(w, http.StatusOK, map[string]any{
		"playing":   frame.Playing,
		"elapsedMs": frame.Elapsed.Milliseconds(),
		"totalMs":   frame.Total.Milliseconds(),
		"rate":      frame.Rate,
	})
}

func (s *Server) handleReplayPlay(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.Play)
}

func (s *Server) handleReplayPause(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.Pause)
}

func (s *Server) handleReplayRestart(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.Restart)
}

func (s *Server) handleReplaySkipToEnd(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.SkipToEnd)
}

func (s *Server) handleReplayRewind(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.Rewind)
}

func (s *Server) handleReplayFastForward(w http.ResponseWriter, r *http.Request) {
	s.replayControl(w, s.replayer.FastForward)
}

func (s *Server) handleReplaySeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OffsetMs int64 `json:"offsetMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid seek request")
		return
	}
	s.replayControl(w, func() {
		s.replayer.Seek(time.Duration(req.OffsetMs) * time.Millisecond)
	})
}

func (s *Server) handleReplayRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rate <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rate request")
		return
	}
	s.replayControl(w, func() {
		s.replayer.SetRate(req.Rate)
	})
}
