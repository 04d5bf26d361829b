package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/api/response"
	"github.com/breatheroute/privacydesk/internal/user"
)

// UsersHandler manages directory accounts.
type UsersHandler struct {
	service *user.Service
	logger  zerolog.Logger
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(service *user.Service, logger zerolog.Logger) *UsersHandler {
	return &UsersHandler{service: service, logger: logger}
}

// CreateUser handles POST /v1/admin/users.
func (h *UsersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input models.UserCreate
	invalid, err := decode(r, &input)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if invalid != nil {
		response.BadRequest(w, r, "request body failed validation", invalid)
		return
	}

	u, err := h.service.Register(r.Context(), input.Email, input.DisplayName)
	switch {
	case errors.Is(err, user.ErrUserExists):
		response.Conflict(w, r, "an account with this email already exists")
	case errors.Is(err, user.ErrInvalidEmail):
		response.BadRequest(w, r, "request body failed validation", []models.FieldError{{
			Field: "email", Message: "must be a valid email address", Code: models.CodeInvalid,
		}})
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to register user")
		response.InternalError(w, r, "failed to register user")
	default:
		response.Created(w, r, "/v1/admin/users/"+u.ID, models.NewUser(u))
	}
}

// GetUser handles GET /v1/admin/users/{userId}.
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "userId"))
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, r, "user not found")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to load user")
		response.InternalError(w, r, "failed to load user")
	default:
		response.JSON(w, r, http.StatusOK, models.NewUser(u))
	}
}

// DeleteUser handles DELETE /v1/admin/users/{userId}.
func (h *UsersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), chi.URLParam(r, "userId"))
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, r, "user not found")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to delete user")
		response.InternalError(w, r, "failed to delete user")
	default:
		response.NoContent(w, r)
	}
}
