// Package server exposes a persisted opponent pool over read-only HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sw965/brawler/elo"
	"github.com/sw965/brawler/pool"
)

// Server reads snapshot metadata from dir on every request. It never writes.
type Server struct {
	dir    string
	logger zerolog.Logger
}

func New(dir string, logger zerolog.Logger) *Server {
	return &Server{dir: dir, logger: logger.With().Str("component", "server").Logger()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationID)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/snapshots/{id}", s.handleSnapshot)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) records() ([]pool.Record, error) {
	return pool.ReadRecords(s.dir, func(id string, err error) {
		s.logger.Debug().Err(err).Str("id", id).Msg("skipping unreadable snapshot")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rs, err := s.records()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read pool directory")
		s.writeError(w, http.StatusInternalServerError, "failed to read pool")
		return
	}
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	if rs == nil {
		rs = []pool.Record{}
	}
	s.writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := pool.ReadRecord(s.dir, id)
	if err != nil || rec.ID != id {
		s.writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type stats struct {
	Count  int            `json:"count"`
	Elo    elo.Summary    `json:"elo"`
	Styles map[string]int `json:"styles"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rs, err := s.records()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read pool directory")
		s.writeError(w, http.StatusInternalServerError, "failed to read pool")
		return
	}
	st := stats{Count: len(rs), Styles: map[string]int{}}
	ratings := make([]float64, len(rs))
	for i, rec := range rs {
		ratings[i] = rec.Elo
		st.Styles[string(rec.Metadata.Style)]++
	}
	st.Elo = elo.Summarize(ratings)
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
