package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// WebsiteRegistry is the persistence surface for website CRUD.
type WebsiteRegistry interface {
	Create(ctx context.Context, website *models.Website) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Website, error)
	List(ctx context.Context, filters *storage.WebsiteFilters) ([]*models.Website, error)
	Update(ctx context.Context, website *models.Website) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, active *bool) (int64, error)
}

// BoardSync keeps the in-memory leaderboard consistent with registry
// changes. Update re-ranks one website from the store (dropping it when it
// is no longer rankable); Remove evicts it outright.
type BoardSync interface {
	Update(ctx context.Context, websiteID uuid.UUID) error
	Remove(ctx context.Context, websiteID uuid.UUID)
}

// WebsiteService handles registration and management of scanned websites.
type WebsiteService struct {
	websites WebsiteRegistry
	board    BoardSync
}

// NewWebsiteService creates a new website service. board may be nil when no
// leaderboard is wired (one-shot tools).
func NewWebsiteService(websites WebsiteRegistry, board BoardSync) *WebsiteService {
	return &WebsiteService{
		websites: websites,
		board:    board,
	}
}

// CreateWebsiteInput represents input for registering a website
type CreateWebsiteInput struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Level          string `json:"level"`
	AgencyType     string `json:"agencyType,omitempty"`
	CadenceSeconds int64  `json:"cadenceSeconds,omitempty"`
}

// UpdateWebsiteInput represents a partial website update; nil fields are
// left unchanged
type UpdateWebsiteInput struct {
	Name           *string `json:"name,omitempty"`
	URL            *string `json:"url,omitempty"`
	Level          *string `json:"level,omitempty"`
	AgencyType     *string `json:"agencyType,omitempty"`
	Active         *bool   `json:"active,omitempty"`
	CadenceSeconds *int64  `json:"cadenceSeconds,omitempty"`
}

// ListWebsitesInput represents list filters and pagination
type ListWebsitesInput struct {
	Level  *string `json:"level,omitempty"`
	Active *bool   `json:"active,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}

// Create registers a website. New websites start active with no scan
// history, so the next scheduler tick picks them up.
func (s *WebsiteService) Create(ctx context.Context, input *CreateWebsiteInput) (*models.Website, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "cannot be empty")
	}
	normalizedURL, err := normalizeWebsiteURL(input.URL)
	if err != nil {
		return nil, err
	}
	if !types.ValidGovernmentLevel(input.Level) {
		return nil, apperrors.NewInvalidParameterError("level", "must be one of federal, state, local")
	}
	if input.CadenceSeconds < 0 {
		return nil, apperrors.NewInvalidParameterError("cadenceSeconds", "cannot be negative")
	}

	website := &models.Website{
		Name:           name,
		URL:            normalizedURL,
		Level:          types.GovernmentLevel(input.Level),
		AgencyType:     strings.TrimSpace(input.AgencyType),
		Active:         true,
		CadenceSeconds: input.CadenceSeconds,
	}

	if err := s.websites.Create(ctx, website); err != nil {
		if errors.Is(err, storage.ErrDuplicateURL) {
			return nil, apperrors.NewDuplicateURLError(normalizedURL)
		}
		return nil, apperrors.NewDatabaseError("create website", err)
	}
	return website, nil
}

// Get returns one website by id.
func (s *WebsiteService) Get(ctx context.Context, id uuid.UUID) (*models.Website, error) {
	website, err := s.websites.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load website", err)
	}
	if website == nil {
		return nil, apperrors.NewWebsiteNotFoundError(id.String())
	}
	return website, nil
}

// List returns websites matching the filters, newest first, plus the total
// count under the same filters.
func (s *WebsiteService) List(ctx context.Context, input *ListWebsitesInput) ([]*models.Website, int64, error) {
	filters := &storage.WebsiteFilters{
		Active: input.Active,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if input.Level != nil {
		if !types.ValidGovernmentLevel(*input.Level) {
			return nil, 0, apperrors.NewInvalidParameterError("level", "must be one of federal, state, local")
		}
		level := types.GovernmentLevel(*input.Level)
		filters.Level = &level
	}

	websites, err := s.websites.List(ctx, filters)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list websites", err)
	}

	// Count ignores level so pagination metadata stays cheap; the common
	// filters are active-only views.
	total, err := s.websites.Count(ctx, input.Active)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("count websites", err)
	}
	return websites, total, nil
}

// Update applies a partial update and keeps the leaderboard in step: a
// deactivated website leaves the board, a reactivated one rejoins once its
// snapshot loads.
func (s *WebsiteService) Update(ctx context.Context, id uuid.UUID, input *UpdateWebsiteInput) (*models.Website, error) {
	website, err := s.websites.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load website", err)
	}
	if website == nil {
		return nil, apperrors.NewWebsiteNotFoundError(id.String())
	}

	activeChanged := false

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewInvalidParameterError("name", "cannot be empty")
		}
		website.Name = name
	}
	if input.URL != nil {
		normalizedURL, err := normalizeWebsiteURL(*input.URL)
		if err != nil {
			return nil, err
		}
		website.URL = normalizedURL
	}
	if input.Level != nil {
		if !types.ValidGovernmentLevel(*input.Level) {
			return nil, apperrors.NewInvalidParameterError("level", "must be one of federal, state, local")
		}
		website.Level = types.GovernmentLevel(*input.Level)
	}
	if input.AgencyType != nil {
		website.AgencyType = strings.TrimSpace(*input.AgencyType)
	}
	if input.Active != nil {
		activeChanged = website.Active != *input.Active
		website.Active = *input.Active
	}
	if input.CadenceSeconds != nil {
		if *input.CadenceSeconds < 0 {
			return nil, apperrors.NewInvalidParameterError("cadenceSeconds", "cannot be negative")
		}
		website.CadenceSeconds = *input.CadenceSeconds
	}

	if err := s.websites.Update(ctx, website); err != nil {
		switch {
		case errors.Is(err, storage.ErrWebsiteNotFound):
			return nil, apperrors.NewWebsiteNotFoundError(id.String())
		case errors.Is(err, storage.ErrDuplicateURL):
			return nil, apperrors.NewDuplicateURLError(website.URL)
		default:
			return nil, apperrors.NewDatabaseError("update website", err)
		}
	}

	if s.board != nil && (activeChanged || input.Level != nil || input.Name != nil || input.URL != nil) {
		if err := s.board.Update(ctx, id); err != nil {
			logging.FromContext(ctx).WithField("website_id", id.String()).
				ErrorWithErr("failed to refresh leaderboard entry", err)
		}
	}
	return website, nil
}

// Delete removes a website, its reports, and its leaderboard entry.
func (s *WebsiteService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.websites.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrWebsiteNotFound) {
			return apperrors.NewWebsiteNotFoundError(id.String())
		}
		return apperrors.NewDatabaseError("delete website", err)
	}
	if s.board != nil {
		s.board.Remove(ctx, id)
	}
	return nil
}

// normalizeWebsiteURL validates and canonicalizes a website URL: absolute,
// http or https, host present, no fragment, trailing slash on a bare path
// stripped.
func normalizeWebsiteURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.NewInvalidURLError(raw, "cannot be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", apperrors.NewInvalidURLError(raw, "not a parseable URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", apperrors.NewInvalidURLError(raw, "scheme must be http or https")
	}
	if parsed.Host == "" {
		return "", apperrors.NewInvalidURLError(raw, "host is missing")
	}

	parsed.Fragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Path == "/" {
		parsed.Path = ""
	}
	return parsed.String(), nil
}
