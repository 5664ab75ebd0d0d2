package models

import "github.com/google/uuid"

// User is a persisted account row. HashedPassword is never serialised
// to API responses.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username" validate:"required,min=3"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email" validate:"omitempty,email"`
	Disabled       bool      `json:"disabled"`
	HashedPassword string    `json:"-"`
}

// NewUserRequest is the create-user payload carrying the cleartext
// password before hashing.
type NewUserRequest struct {
	Username  string `json:"username" validate:"required,min=3"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest is the update-user payload. Nil fields are left
// unchanged; a non-empty Password replaces the stored hash.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Disabled  *bool   `json:"disabled,omitempty"`
	Password  string  `json:"password,omitempty" validate:"omitempty,min=8"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned from a successful login alongside the
// session cookie.
type AuthResponse struct {
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
