// Package user provides the account directory that privacy requests are
// matched against.
//
// # PII Considerations
//
// Data Stored:
//   - ID: Internal identifier (not PII, randomly generated)
//   - Email: Lower-cased address used to match incoming requests
//   - DisplayName: Optional, shown only to administrators
//   - Metadata: Per-account key/value pairs (pending confirmation tokens)
//
// Deleting an account removes its metadata in the same statement.
package user

import (
	"strings"
	"time"
)

// User is an account in the directory.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	// Email is the account's lower-cased email address.
	Email string

	// DisplayName is an optional human readable name.
	DisplayName string

	// CreatedAt is when the user was created.
	CreatedAt time.Time

	// UpdatedAt is when the user was last updated.
	UpdatedAt time.Time
}

// NormalizeEmail returns the canonical form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
