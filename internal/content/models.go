// Package content answers whether an account owns published material or
// feedback, which gates fulfilment of deletion requests.
package content

import (
	"context"
	"time"

	"github.com/breatheroute/privacydesk/internal/requests"
)

// Item statuses.
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
	StatusPrivate   = "private"
)

// Feedback statuses.
const (
	FeedbackApproved = "approved"
	FeedbackPending  = "pending"
	FeedbackSpam     = "spam"
)

// Type is a registered kind of content.
type Type struct {
	Name   string
	Public bool
}

// Item is a piece of authored content.
type Item struct {
	ID        string
	Type      string
	AuthorID  string
	Status    string
	CreatedAt time.Time
}

// Feedback is a comment attributed to a contact address.
type Feedback struct {
	ID          string
	ItemID      string
	AuthorEmail string
	Status      string
	CreatedAt   time.Time
}

// Counter answers the content counts used by the eligibility check.
type Counter interface {
	// PublicContentTypes lists the names of publicly visible content types.
	PublicContentTypes(ctx context.Context) ([]string, error)

	// CountAuthored counts published items of contentType by userID.
	CountAuthored(ctx context.Context, userID, contentType string) (int, error)

	// CountFeedback counts approved feedback from email, plus pending
	// feedback when includeUnapproved is set.
	CountFeedback(ctx context.Context, email string, includeUnapproved bool) (int, error)
}

// ExtensionFunc is an additional ownership signal consulted last.
type ExtensionFunc func(ctx context.Context, subject requests.Subject) (bool, error)
