// Package handler provides HTTP handlers for the privacy desk API.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/api/response"
	"github.com/breatheroute/privacydesk/internal/featureflags"
	"github.com/breatheroute/privacydesk/internal/notify"
	"github.com/breatheroute/privacydesk/internal/requests"
)

// RequestsConfig holds the collaborators of RequestsHandler.
type RequestsConfig struct {
	Service  *requests.Service
	Flags    *featureflags.Service
	Notifier notify.Notifier
	Logger   zerolog.Logger
	TTL      time.Duration
	Now      func() time.Time
}

// RequestsHandler serves the public intake and the administrative request
// endpoints.
type RequestsHandler struct {
	service  *requests.Service
	flags    *featureflags.Service
	notifier notify.Notifier
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewRequestsHandler creates a new RequestsHandler.
func NewRequestsHandler(cfg RequestsConfig) *RequestsHandler {
	if cfg.TTL <= 0 {
		cfg.TTL = requests.TokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RequestsHandler{
		service:  cfg.Service,
		flags:    cfg.Flags,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
}

// CreateRequest handles POST /v1/gdpr/requests.
func (h *RequestsHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if h.flags.IntakePaused(r.Context()) {
		response.ServiceUnavailable(w, r, "privacy request intake is temporarily paused")
		return
	}

	var input models.RequestCreate
	invalid, err := decode(r, &input)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if invalid != nil {
		response.BadRequest(w, r, "request body failed validation", invalid)
		return
	}

	t := requests.RequestType(input.Type)
	token, err := h.service.Create(r.Context(), input.Email, t, input.Details)
	switch {
	case errors.Is(err, requests.ErrInvalidRequestType):
		response.BadRequest(w, r, "unsupported request type", []models.FieldError{{
			Field:   "type",
			Message: "must be one of access, rectify, portability, complaint, delete",
			Code:    models.CodeInvalidRequestType,
		}})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("type", input.Type).Msg("failed to create privacy request")
		response.InternalError(w, r, "failed to record request")
		return
	}

	expiresAt := h.now().UTC().Add(h.ttl)
	h.sendConfirmation(r, notify.Confirmation{
		Email:     requests.SanitizeEmail(input.Email),
		Type:      string(t),
		Token:     token,
		ExpiresAt: expiresAt,
	})

	response.Accepted(w, r, "", models.RequestAccepted{
		Status:    models.RequestStatusPendingConfirmation,
		Type:      string(t),
		ExpiresAt: models.TimestampPtr(&expiresAt),
	})
}

// sendConfirmation delivers the confirm link. Delivery failures are logged;
// the request stays recorded and expires if never confirmed.
func (h *RequestsHandler) sendConfirmation(r *http.Request, c notify.Confirmation) {
	if h.notifier == nil || h.flags.NotificationsDisabled(r.Context()) {
		return
	}
	if err := h.notifier.SendConfirmation(r.Context(), c); err != nil {
		h.logger.Error().Err(err).Str("type", c.Type).Msg("failed to send confirmation link")
	}
}

// ConfirmRequest handles POST /v1/gdpr/requests/{token}/confirm.
func (h *RequestsHandler) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if len(token) != requests.KeyLength {
		response.NotFound(w, r, "confirmation link is invalid or has expired")
		return
	}

	err := h.service.Confirm(r.Context(), token)
	switch {
	case errors.Is(err, requests.ErrNotFound):
		response.NotFound(w, r, "confirmation link is invalid or has expired")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to confirm privacy request")
		response.InternalError(w, r, "failed to confirm request")
	default:
		response.JSON(w, r, http.StatusOK, models.RequestConfirmed{Status: models.RequestStatusConfirmed})
	}
}

// ListRequests handles GET /v1/admin/gdpr/requests.
func (h *RequestsHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list privacy requests")
		response.InternalError(w, r, "failed to list requests")
		return
	}

	items := make([]models.PrivacyRequest, 0, len(records))
	for _, rec := range records {
		items = append(items, models.NewPrivacyRequest(rec))
	}
	response.JSON(w, r, http.StatusOK, models.PrivacyRequestList{
		Items: items,
		Meta:  models.ListMeta{Total: len(items)},
	})
}

// GetRequest handles GET /v1/admin/gdpr/requests/{key}.
func (h *RequestsHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "key"))
	switch {
	case errors.Is(err, requests.ErrNotFound):
		response.NotFound(w, r, "request not found")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to load privacy request")
		response.InternalError(w, r, "failed to load request")
	default:
		response.JSON(w, r, http.StatusOK, models.NewPrivacyRequest(*record))
	}
}

// DeleteRequest handles DELETE /v1/admin/gdpr/requests/{key}.
func (h *RequestsHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Delete(r.Context(), chi.URLParam(r, "key"))
	switch {
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to delete privacy request")
		response.InternalError(w, r, "failed to delete request")
	case !removed:
		response.NotFound(w, r, "request not found")
	default:
		response.NoContent(w, r)
	}
}

// SubjectContent handles GET /v1/admin/gdpr/subjects/{subjectId}/content.
func (h *RequestsHandler) SubjectContent(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")
	has, err := h.service.SubjectHasContent(r.Context(), subjectID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", subjectID).Msg("failed to check subject content")
		response.ServiceUnavailable(w, r, "content store unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, models.SubjectContent{SubjectID: subjectID, HasContent: has})
}
