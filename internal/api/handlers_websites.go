package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/codeforpakistan/watchtower-api/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// parseUUIDVar extracts and parses a UUID path variable. On failure it writes
// a 400 response and returns false.
func parseUUIDVar(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, fmt.Sprintf("Invalid %s parameter: must be a UUID", name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// handleCreateWebsite handles POST /api/websites - Register a website for scanning
func (s *Server) handleCreateWebsite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		URL            string `json:"url"`
		Level          string `json:"level"`
		AgencyType     string `json:"agencyType,omitempty"`
		CadenceSeconds int64  `json:"cadenceSeconds,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	input := &service.CreateWebsiteInput{
		Name:           req.Name,
		URL:            req.URL,
		Level:          req.Level,
		AgencyType:     req.AgencyType,
		CadenceSeconds: req.CadenceSeconds,
	}

	website, err := s.websiteService.Create(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, website)
}

// handleListWebsites handles GET /api/websites - List registered websites
func (s *Server) handleListWebsites(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := &service.ListWebsitesInput{}

	if levelStr := query.Get("level"); levelStr != "" {
		input.Level = &levelStr
	}
	if activeStr := query.Get("active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			input.Active = &active
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			input.Limit = l
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			input.Offset = o
		}
	}

	websites, total, err := s.websiteService.List(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"websites": websites,
		"total":    total,
		"limit":    input.Limit,
		"offset":   input.Offset,
	})
}

// handleGetWebsite handles GET /api/websites/:id - Get one website
func (s *Server) handleGetWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	website, err := s.websiteService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, website)
}

// handleUpdateWebsite handles PUT /api/websites/:id - Partially update a website
func (s *Server) handleUpdateWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name           *string `json:"name,omitempty"`
		URL            *string `json:"url,omitempty"`
		Level          *string `json:"level,omitempty"`
		AgencyType     *string `json:"agencyType,omitempty"`
		Active         *bool   `json:"active,omitempty"`
		CadenceSeconds *int64  `json:"cadenceSeconds,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	input := &service.UpdateWebsiteInput{
		Name:           req.Name,
		URL:            req.URL,
		Level:          req.Level,
		AgencyType:     req.AgencyType,
		Active:         req.Active,
		CadenceSeconds: req.CadenceSeconds,
	}

	website, err := s.websiteService.Update(r.Context(), id, input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, website)
}

// handleDeleteWebsite handles DELETE /api/websites/:id - Remove a website
// and its scan history
func (s *Server) handleDeleteWebsite(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	if err := s.websiteService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}
