// Package featureflags provides runtime switches for the privacy request
// lifecycle, stored in a repository and cached in memory.
package featureflags

import (
	"time"
)

// Well-known feature flag keys.
const (
	// FlagDeleteClearsToken makes administrative deletion of an unconfirmed
	// request revoke its pending token and cancel its cleanup.
	FlagDeleteClearsToken = "gdpr_delete_clears_token"

	// FlagIntakePaused rejects new privacy requests with 503.
	FlagIntakePaused = "gdpr_request_intake_paused"

	// FlagNotificationsDisabled stops confirmation links from being sent.
	// Requests are still recorded.
	FlagNotificationsDisabled = "gdpr_notifications_disabled"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key" validate:"required"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates" validate:"required,min=1,dive"`
	Reason  string       `json:"reason" validate:"required,max=500"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// clone returns a copy safe to hand out of a repository or cache.
func (f *Flag) clone() *Flag {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// DefaultFlags returns the default feature flags. All switches start off,
// which keeps deletion store-only and intake open.
func DefaultFlags() map[string]*Flag {
	var epoch time.Time
	return map[string]*Flag{
		FlagDeleteClearsToken:     {Key: FlagDeleteClearsToken, Value: false, UpdatedAt: epoch},
		FlagIntakePaused:          {Key: FlagIntakePaused, Value: false, UpdatedAt: epoch},
		FlagNotificationsDisabled: {Key: FlagNotificationsDisabled, Value: false, UpdatedAt: epoch},
	}
}
