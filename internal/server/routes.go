package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the full HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/tiles/{z}/{x}/{y}", s.handleTile)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/map/info", s.handleMapInfo)

		r.Post("/archive", s.handleArchiveUpload)
		r.Get("/archive/progress", s.handleArchiveProgress)

		r.Post("/reference/{id}", s.handleSetReference)
		r.Delete("/reference", s.handleClearReference)

		r.Get("/sessions", s.handleListSessions)

		r.Route("/replay", func(r chi.Router) {
			r.Post("/select_session/{id}", s.handleSelectSession)
			r.Post("/live", s.handleBackToLive)
			r.Post("/play", s.handleReplayPlay)
			r.Post("/pause", s.handleReplayPause)
			r.Post("/restart", s.handleReplayRestart)
			r.Post("/skip_to_end", s.handleReplaySkipToEnd)
			r.Post("/rewind", s.handleReplayRewind)
			r.Post("/fast_forward", s.handleReplayFastForward)
			r.Post("/seek", s.handleReplaySeek)
			r.Post("/rate", s.handleReplayRate)
		})
	})

	r.Get("/ws", s.hub.ServeHTTP)

	return r
}
