// Package server is the HTTP surface: session lifecycle and host
// controls, team actions, read models, and the live event stream. All
// game rules live below it; handlers validate shape, not semantics.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/logger"
	"github.com/oakbridge-games/homestead/internal/session"
	"github.com/oakbridge-games/homestead/internal/store"
)

type Server struct {
	game *session.Manager
	hub  *broadcast.Hub
	mux  *chi.Mux
}

func New(gameSvc *session.Manager, hub *broadcast.Hub) *Server {
	s := &Server{
		game: gameSvc,
		hub:  hub,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{code}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Get("/prices/{resource}", s.handlePriceHistory)
			r.Get("/stream", s.handleStream)

			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/complete", s.handleComplete)

			r.Post("/trades", s.handleTrade)
			r.Post("/buildings", s.handleBuyBuilding)
			r.Post("/challenges", s.handleCompleteChallenge)

			r.Post("/events", s.handleTriggerEvent)
			r.Post("/events/cure", s.handleCure)
			r.Post("/events/breakthrough", s.handleBreakthrough)
			r.Post("/prices/override", s.handleOverridePrice)
		})
	})
}

// requestLogger is deliberately thin; the SSE stream would otherwise log
// one line per connection lifetime, which is all we want anyway.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.LogRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrSessionNotActive),
		errors.Is(err, session.ErrSessionNotWaiting),
		errors.Is(err, session.ErrSessionNotPaused):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnknownTeam),
		errors.Is(err, session.ErrUnknownResource),
		errors.Is(err, session.ErrUnknownBuilding),
		errors.Is(err, session.ErrUnknownEvent):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidSeverity),
		errors.Is(err, session.ErrInvalidQuantity),
		errors.Is(err, session.ErrInsufficientFunds),
		errors.Is(err, session.ErrInsufficientStock),
		errors.Is(err, session.ErrBuildingCapped),
		errors.Is(err, session.ErrUnknownScenario),
		errors.Is(err, session.ErrNotApplicable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrProductionBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
