package api

import (
	"net/http"
)

// handleTriggerScan handles POST /api/websites/:id/scan - Enqueue an
// on-demand scan. Returns 202 with a job receipt; the scan itself runs
// asynchronously on the worker pool.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	receipt, err := s.scanService.TriggerScan(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, receipt)
}

// handleTriggerAll handles POST /api/scans/all - Mark every active website
// due so the next scheduler tick enqueues the whole fleet
func (s *Server) handleTriggerAll(w http.ResponseWriter, r *http.Request) {
	marked, err := s.scanService.TriggerAll(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"marked": marked,
	})
}

// handleJobStatus handles GET /api/scans/:id - Status of an enqueued scan job
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDVar(w, r, "id")
	if !ok {
		return
	}

	status, err := s.scanService.JobStatus(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}
