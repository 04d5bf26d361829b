package models

import "github.com/breatheroute/privacydesk/internal/featureflags"

// FeatureFlagList is the administrative flag listing.
type FeatureFlagList struct {
	Flags []*featureflags.Flag `json:"flags"`
}

// FeatureFlagHistory is the change log of one flag, newest first.
type FeatureFlagHistory struct {
	Key     string                `json:"key"`
	Changes []featureflags.Change `json:"changes"`
}
