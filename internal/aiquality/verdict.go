package aiquality

import (
	"encoding/json"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// chatRequest represents an OpenAI-compatible chat completion request
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage represents one message in a chat exchange
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat constrains the model's reply shape
type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents an OpenAI-compatible chat completion response
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// chatChoice represents one completion candidate
type chatChoice struct {
	Message chatMessage `json:"message"`
}

// verdict represents the JSON contract the model must answer with.
// Pointer scores distinguish a missing dimension from an honest zero.
type verdict struct {
	Accessibility         *float64 `json:"accessibility"`
	Design                *float64 `json:"design"`
	Content               *float64 `json:"content"`
	Usability             *float64 `json:"usability"`
	LanguageAccessibility *string  `json:"language_accessibility"`
	Recommendations       []string `json:"recommendations"`
}

// parseVerdict validates the model's reply against the verdict contract.
// A reply outside the contract is permanent: the same prompt would fail
// the same way on retry.
func parseVerdict(content, model string) (*models.AIAssessment, error) {
	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, scanerr.Permanent(source, "model reply is not valid JSON", err)
	}

	if v.Accessibility == nil || v.Design == nil || v.Content == nil || v.Usability == nil {
		return nil, scanerr.Permanent(source, "model reply is missing a dimension score", nil)
	}

	assessment := &models.AIAssessment{
		Accessibility:         clamp(*v.Accessibility),
		Design:                clamp(*v.Design),
		Content:               clamp(*v.Content),
		Usability:             clamp(*v.Usability),
		LanguageAccessibility: v.LanguageAccessibility,
		Recommendations:       v.Recommendations,
		Model:                 model,
	}

	return assessment, nil
}

// clamp bounds a score to the 0-100 scale.
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
