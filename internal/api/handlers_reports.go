package api

import (
	"net/http"
	"strconv"
	"time"
)

// handleLatestReport handles GET /api/websites/:id/report - Latest scan report
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	report, err := s.reportService.Latest(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleReportHistory handles GET /api/websites/:id/reports - Past reports,
// newest first, with pagination
func (s *Server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	query := r.URL.Query()

	limit := 0 // Service applies the default page size
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	reports, err := s.reportService.History(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"websiteId": id,
		"reports":   reports,
		"count":     len(reports),
		"offset":    offset,
	})
}

// handleGetReport handles GET /api/reports/:id - Get one report by id
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	report, err := s.reportService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleWebsiteFailures handles GET /api/websites/:id/failures - Failed scan
// attempts for one website, newest first
func (s *Server) handleWebsiteFailures(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	failures, err := s.reportService.Failures(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"websiteId": id,
		"failures":  failures,
		"count":     len(failures),
	})
}

// handleRecentFailures handles GET /api/failures - Fleet-wide failed scans
// within a recent window (default 24h)
func (s *Server) handleRecentFailures(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	hours := 24
	if hoursStr := query.Get("hours"); hoursStr != "" {
		if h, err := strconv.Atoi(hoursStr); err == nil && h > 0 {
			hours = h
		}
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	failures, err := s.reportService.RecentFailures(r.Context(), since, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"since":    since,
		"failures": failures,
		"count":    len(failures),
	})
}
