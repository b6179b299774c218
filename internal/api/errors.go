package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondServiceError renders a service-layer error. Categorized errors keep
// their status code and error code; anything else surfaces as an opaque 500.
// Rate-limited responses carry an advisory Retry-After header.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithField("code", catErr.Code).
			ErrorWithErr("request failed", err)
	}
	if catErr.StatusCode == http.StatusTooManyRequests {
		if retryAfter, ok := catErr.Details["retryAfter"].(int); ok && retryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		}
	}

	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Request-level error codes. Service-layer errors carry their own codes
// through respondServiceError.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)
