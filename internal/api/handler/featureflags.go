package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/api/middleware"
	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/api/response"
	"github.com/breatheroute/privacydesk/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.FeatureFlagList{Flags: h.service.ListFlags(r.Context())})
}

// UpdateFeatureFlags handles PUT /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) UpdateFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input featureflags.FlagUpdateRequest
	invalid, err := decode(r, &input)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if invalid != nil {
		response.BadRequest(w, r, "request body failed validation", invalid)
		return
	}

	flags, err := h.service.Update(r.Context(), &input, middleware.GetAdminID(r.Context()))
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag), errors.Is(err, featureflags.ErrInvalidFlagValue):
		response.BadRequest(w, r, err.Error(), nil)
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
	default:
		response.JSON(w, r, http.StatusOK, models.FeatureFlagList{Flags: flags})
	}
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key}.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	err := h.service.Reset(r.Context(), chi.URLParam(r, "key"), middleware.GetAdminID(r.Context()))
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.NotFound(w, r, "unknown feature flag")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to reset feature flag")
		response.InternalError(w, r, "failed to reset feature flag")
	default:
		response.NoContent(w, r)
	}
}

// historyLimit caps a single history page.
const historyLimit = 100

// FeatureFlagHistory handles GET /v1/admin/feature-flags/{key}/history.
func (h *FeatureFlagsHandler) FeatureFlagHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > historyLimit {
			response.BadRequest(w, r, "limit must be between 1 and 100", []models.FieldError{
				{Field: "limit", Code: models.CodeInvalid, Message: "must be between 1 and 100"},
			})
			return
		}
		limit = n
	}

	key := chi.URLParam(r, "key")
	changes, err := h.service.History(r.Context(), key, limit)
	switch {
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.NotFound(w, r, "unknown feature flag")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to read feature flag history")
		response.InternalError(w, r, "failed to read feature flag history")
	default:
		if changes == nil {
			changes = []featureflags.Change{}
		}
		response.JSON(w, r, http.StatusOK, models.FeatureFlagHistory{Key: key, Changes: changes})
	}
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
