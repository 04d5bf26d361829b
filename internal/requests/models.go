// Package requests tracks data-subject privacy requests through their
// confirmation lifecycle.
//
// A request is created unconfirmed and identified by an opaque key. The key
// doubles as the confirmation token delivered to the requester. While a
// request from a known account is unconfirmed, a pending token is held in the
// account's metadata and scheduled to expire after TokenTTL.
package requests

import (
	"context"
	"errors"
	"time"
)

// TokenTTL is how long a confirmation token stays valid.
const TokenTTL = 48 * time.Hour

// Scheduler hooks owned by this package.
const (
	// HookCleanToken removes a pending token from account metadata.
	// Args: user_id, meta_key.
	HookCleanToken = "clean_gdpr_user_request_key"

	// HookCleanRequest removes a request that was never confirmed.
	// Args: key.
	HookCleanRequest = "clean_gdpr_requests"
)

// Scheduler argument names.
const (
	ArgUserID  = "user_id"
	ArgMetaKey = "meta_key"
	ArgKey     = "key"
)

// Errors returned by the lifecycle.
var (
	ErrInvalidRequestType   = errors.New("invalid request type")
	ErrNotFound             = errors.New("request not found")
	ErrPersistence          = errors.New("request store unavailable")
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	ErrSubjectNotFound      = errors.New("subject not found")
)

// ErrTokenSuperseded is returned when confirming a token that a newer request
// of the same type has replaced.
var ErrTokenSuperseded error = supersededError{}

// supersededError reports a confirmation token replaced by a newer request of
// the same type. It matches ErrNotFound so callers can treat it as absent.
type supersededError struct{}

func (supersededError) Error() string { return "confirmation token superseded" }

func (supersededError) Is(target error) bool { return target == ErrNotFound }

// RequestType is the kind of data-subject request.
type RequestType string

// Request types.
const (
	TypeAccess      RequestType = "access"
	TypeRectify     RequestType = "rectify"
	TypePortability RequestType = "portability"
	TypeComplaint   RequestType = "complaint"
	TypeDelete      RequestType = "delete"
)

// RequestTypes returns every accepted request type.
func RequestTypes() []RequestType {
	return []RequestType{TypeAccess, TypeRectify, TypePortability, TypeComplaint, TypeDelete}
}

// ParseRequestType validates s against the fixed vocabulary.
func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(s)
	if !t.Valid() {
		return "", ErrInvalidRequestType
	}
	return t, nil
}

// Valid reports whether t is one of the accepted request types.
func (t RequestType) Valid() bool {
	switch t {
	case TypeAccess, TypeRectify, TypePortability, TypeComplaint, TypeDelete:
		return true
	}
	return false
}

// Record is a stored data-subject request.
type Record struct {
	Key       string      `json:"key"`
	Email     string      `json:"email"`
	Type      RequestType `json:"type"`
	CreatedAt time.Time   `json:"date"`
	Data      string      `json:"data"`
	Confirmed bool        `json:"confirmed"`

	// Superseded is set when a newer request of the same type from the same
	// account replaced this one's token. It can no longer be confirmed.
	Superseded bool `json:"superseded,omitempty"`
}

// Subject is an account resolved from the directory.
type Subject struct {
	ID    string
	Email string
}

// Directory resolves requesters to accounts.
// Both lookups return ErrSubjectNotFound when no account matches.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*Subject, error)
	FindByID(ctx context.Context, id string) (*Subject, error)
}

// MetaStore holds per-account metadata.
type MetaStore interface {
	GetMeta(ctx context.Context, subjectID, key string) (string, bool, error)
	SetMeta(ctx context.Context, subjectID, key, value string) error
	DeleteMeta(ctx context.Context, subjectID, key string) error
}

// Eligibility answers whether a subject owns content that a deletion would
// contradict.
type Eligibility interface {
	SubjectHasContent(ctx context.Context, subjectID string) (bool, error)
}

// Policy exposes runtime switches for the lifecycle.
type Policy interface {
	// DeleteClearsToken reports whether deleting an unconfirmed request
	// also revokes its pending token.
	DeleteClearsToken(ctx context.Context) bool
}

// StaticPolicy is a Policy with fixed answers.
type StaticPolicy struct {
	ClearTokenOnDelete bool
}

// DeleteClearsToken implements Policy.
func (p StaticPolicy) DeleteClearsToken(context.Context) bool {
	return p.ClearTokenOnDelete
}
