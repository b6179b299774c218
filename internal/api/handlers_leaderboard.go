package api

import (
	"net/http"
	"strconv"

	"github.com/codeforpakistan/watchtower-api/internal/service"
)

// parseBoardQuery reads the level and limit filters shared by the ranking
// endpoints.
func parseBoardQuery(r *http.Request) *service.BoardQuery {
	query := r.URL.Query()

	boardQuery := &service.BoardQuery{}
	if levelStr := query.Get("level"); levelStr != "" {
		boardQuery.Level = &levelStr
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			boardQuery.Limit = l
		}
	}
	return boardQuery
}

// handleLeaderboard handles GET /api/leaderboard - Websites ranked best
// first by composite score
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.leaderboardService.Leaderboard(r.Context(), parseBoardQuery(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleShameWall handles GET /api/shame-wall - Shame-worthy websites ranked
// worst first
func (s *Server) handleShameWall(w http.ResponseWriter, r *http.Request) {
	view, err := s.leaderboardService.ShameWall(r.Context(), parseBoardQuery(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}
