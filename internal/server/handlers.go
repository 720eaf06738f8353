package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakbridge-games/homestead/internal/game"
	"github.com/oakbridge-games/homestead/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name       string `json:"name"`
		Difficulty string `json:"difficulty"`
		DurationMS int64  `json:"duration_ms"`
		ScenarioID string `json:"scenario_id"`
		Teams      []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"teams"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	difficulty := game.Difficulty(in.Difficulty)
	if !game.ValidDifficulty(difficulty) {
		writeError(w, http.StatusBadRequest, "invalid difficulty")
		return
	}
	if len(in.Teams) == 0 {
		writeError(w, http.StatusBadRequest, "at least one team is required")
		return
	}

	teams := make([]session.TeamSpec, 0, len(in.Teams))
	for _, t := range in.Teams {
		teams = append(teams, session.TeamSpec{ID: t.ID, Name: t.Name})
	}
	out, err := s.game.Create(r.Context(), in.Name, difficulty,
		time.Duration(in.DurationMS)*time.Millisecond, in.ScenarioID, teams)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"code": out.Code})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	res := game.Resource(chi.URLParam(r, "resource"))
	if !game.ValidResource(res) {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}
	records, err := s.game.History().Window(r.Context(), chi.URLParam(r, "code"), res, since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Start(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": out.Code, "status": out.Status})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Pause(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": out.Code, "status": out.Status})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Resume(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": out.Code, "status": out.Status})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Complete(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": out.Code, "status": out.Status})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Team     string `json:"team"`
		Resource string `json:"resource"`
		Quantity int    `json:"quantity"`
		Side     string `json:"side"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ExecuteTrade(r.Context(), chi.URLParam(r, "code"),
		in.Team, game.Resource(in.Resource), in.Quantity, session.TradeSide(in.Side))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyBuilding(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Team     string `json:"team"`
		Building string `json:"building"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cost, err := s.game.PurchaseBuilding(r.Context(), chi.URLParam(r, "code"),
		in.Team, game.Building(in.Building))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cost": cost})
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Team     string `json:"team"`
		Player   string `json:"player"`
		Building string `json:"building"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CompleteChallenge(r.Context(), chi.URLParam(r, "code"),
		in.Team, in.Player, game.Building(in.Building))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind     string `json:"kind"`
		Severity int    `json:"severity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.TriggerEvent(r.Context(), chi.URLParam(r, "code"),
		game.EventKind(in.Kind), in.Severity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCure(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Team string `json:"team"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.CureTeam(r.Context(), chi.URLParam(r, "code"), in.Team); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBreakthrough(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Team string `json:"team"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.CompleteBreakthrough(r.Context(), chi.URLParam(r, "code"), in.Team); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOverridePrice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Resource string `json:"resource"`
		Baseline int    `json:"baseline"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.OverridePrice(r.Context(), chi.URLParam(r, "code"),
		game.Resource(in.Resource), in.Baseline); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
