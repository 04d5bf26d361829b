package models

import "github.com/breatheroute/privacydesk/internal/user"

// UserCreate registers an account in the directory.
type UserCreate struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

// User is the administrative view of an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// NewUser converts a directory account.
func NewUser(u *user.User) User {
	return User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   Timestamp(u.CreatedAt),
	}
}
