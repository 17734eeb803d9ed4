package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"scholaverse/catalog"
	"scholaverse/scoring"
)

type optionsResponse struct {
	UnitCode string                  `json:"unit_code"`
	Source   scoring.Source          `json:"source,omitempty"`
	Options  scoring.ResolvedOptions `json:"options"`
}

type cardSummaryResponse struct {
	Level       int            `json:"level"`
	BorderStyle scoring.Border `json:"border_style"`
}

type unitsResponse struct {
	Units []catalog.GroupInfo `json:"units"`
}

func (s *Server) registerStudentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/units", s.handleUnits)
	mux.HandleFunc("/api/config/{unit}/options", s.auth.RequireSession(s.handleOptions))
	mux.HandleFunc("/api/card/summary", s.auth.RequireSession(s.handleCardSummary))
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, unitsResponse{Units: s.resolver.Catalog().Groups()})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	unit := r.PathValue("unit")

	quizRaw := r.URL.Query().Get("quiz")
	if quizRaw == "" {
		writeError(w, http.StatusBadRequest, "quiz is required")
		return
	}
	quiz, err := strconv.ParseFloat(quizRaw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "quiz must be a number")
		return
	}
	homework, ok := optionalFloat(r, "homework")
	if !ok {
		writeError(w, http.StatusBadRequest, "homework must be a number")
		return
	}
	completion, ok := optionalFloat(r, "completion")
	if !ok {
		writeError(w, http.StatusBadRequest, "completion must be a number")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	resolved, err := s.resolver.Resolve(ctx, scoring.Request{
		Group:      unit,
		Quiz:       quiz,
		Homework:   homework,
		Completion: completion,
		Class:      strings.TrimSpace(r.URL.Query().Get("class")),
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("unit_code", unit).Msg("resolve options failed")
		writeError(w, http.StatusInternalServerError, "resolve options failed")
		return
	}

	writeJSON(w, http.StatusOK, optionsResponse{
		UnitCode: unit,
		Source:   resolved.Source(),
		Options:  resolved,
	})
}

func (s *Server) handleCardSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	completion, ok := optionalFloat(r, "completion")
	if !ok {
		writeError(w, http.StatusBadRequest, "completion must be a number")
		return
	}
	weeks := 0
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weeks must be an integer")
			return
		}
		weeks = n
	}
	pct := 0.0
	if completion != nil {
		pct = *completion
	}
	writeJSON(w, http.StatusOK, cardSummaryResponse{
		Level:       scoring.LevelFromCompletion(pct),
		BorderStyle: scoring.BorderStyle(weeks),
	})
}
