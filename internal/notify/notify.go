// Package notify delivers confirmation links to requesters.
package notify

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Confirmation is the message sent after a privacy request is created.
type Confirmation struct {
	Email     string
	Type      string
	Token     string
	ExpiresAt time.Time
}

// Notifier sends confirmation messages.
type Notifier interface {
	SendConfirmation(ctx context.Context, c Confirmation) error
}

// ConfirmURL builds the link a requester follows to confirm.
func ConfirmURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/gdpr/requests/" + url.PathEscape(token) + "/confirm"
}

// LogNotifier writes confirmations to the log instead of sending them.
// Intended for local development.
type LogNotifier struct {
	logger  zerolog.Logger
	baseURL string
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger zerolog.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger, baseURL: baseURL}
}

// SendConfirmation logs the confirmation link at debug level.
func (n *LogNotifier) SendConfirmation(_ context.Context, c Confirmation) error {
	n.logger.Debug().
		Str("type", c.Type).
		Str("confirm_url", ConfirmURL(n.baseURL, c.Token)).
		Time("expires_at", c.ExpiresAt).
		Msg("confirmation link")
	return nil
}
