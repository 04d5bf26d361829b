package models

import "github.com/breatheroute/privacydesk/internal/requests"

// Request lifecycle states reported to callers.
const (
	RequestStatusPendingConfirmation = "PENDING_CONFIRMATION"
	RequestStatusConfirmed           = "CONFIRMED"
	RequestStatusSuperseded          = "SUPERSEDED"
)

// RequestCreate is the public intake body.
type RequestCreate struct {
	Email   string `json:"email" validate:"required,email,max=254"`
	Type    string `json:"type" validate:"required"`
	Details string `json:"details" validate:"max=5000"`
}

// RequestAccepted is returned for a new request. The confirmation token is
// only ever delivered out of band.
type RequestAccepted struct {
	Status    string     `json:"status"`
	Type      string     `json:"type"`
	ExpiresAt *Timestamp `json:"expiresAt,omitempty"`
}

// RequestConfirmed is returned after a successful confirmation.
type RequestConfirmed struct {
	Status string `json:"status"`
}

// PrivacyRequest is the administrative view of a stored request.
type PrivacyRequest struct {
	Key       string    `json:"key"`
	Email     string    `json:"email"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	CreatedAt Timestamp `json:"createdAt"`
	Confirmed bool      `json:"confirmed"`
}

// PrivacyRequestList is a collection of stored requests.
type PrivacyRequestList struct {
	Items []PrivacyRequest `json:"items"`
	Meta  ListMeta         `json:"meta"`
}

// SubjectContent reports whether deleting a subject would remove content.
type SubjectContent struct {
	SubjectID  string `json:"subjectId"`
	HasContent bool   `json:"hasContent"`
}

// NewPrivacyRequest converts a stored record.
func NewPrivacyRequest(r requests.Record) PrivacyRequest {
	status := RequestStatusPendingConfirmation
	switch {
	case r.Confirmed:
		status = RequestStatusConfirmed
	case r.Superseded:
		status = RequestStatusSuperseded
	}
	return PrivacyRequest{
		Key:       r.Key,
		Email:     r.Email,
		Type:      string(r.Type),
		Status:    status,
		Details:   r.Data,
		CreatedAt: Timestamp(r.CreatedAt),
		Confirmed: r.Confirmed,
	}
}
