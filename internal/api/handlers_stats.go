package api

import (
	"net/http"
	"strconv"
	"time"
)

// parseSinceDays reads a "days" query parameter and converts it to an
// absolute UTC cutoff.
func parseSinceDays(r *http.Request, defaultDays int) time.Time {
	days := defaultDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}
	return time.Now().UTC().AddDate(0, 0, -days)
}

// handleStatsOverview handles GET /api/stats - Fleet-wide score statistics
// grouped by government level (default window 30 days)
func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.statsService.Overview(r.Context(), parseSinceDays(r, 30))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, overview)
}

// handleDailyAverages handles GET /api/stats/daily - Fleet-wide daily average
// composite scores (default window 30 days)
func (s *Server) handleDailyAverages(w http.ResponseWriter, r *http.Request) {
	since := parseSinceDays(r, 30)

	days, err := s.statsService.DailyAverages(r.Context(), since)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"since": since,
		"days":  days,
	})
}

// handleScoreHistory handles GET /api/websites/:id/history - Per-scan score
// samples for one website (default window 90 days)
func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	since := parseSinceDays(r, 90)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	samples, err := s.statsService.WebsiteHistory(r.Context(), id, since, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"websiteId": id,
		"since":     since,
		"samples":   samples,
		"count":     len(samples),
	})
}
