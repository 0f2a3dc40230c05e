package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a login account. Role is one of auth.RoleAdmin, auth.RoleDoctor or
// auth.RoleUser.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type RegisterRequest struct {
	Login    string `json:"login" validate:"notblank,max=255"`
	Password string `json:"password" validate:"notblank,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin doctor user"`
}

type LoginRequest struct {
	Login    string `json:"login" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

// LoginResult is returned by a successful authentication.
type LoginResult struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
