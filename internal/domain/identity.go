package domain

import "time"

// Role is the coarse-grained access level of a session.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Identity is an authenticated principal as known to the identity provider.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials is the stored form of an identity, including its secret hash.
type Credentials struct {
	Identity
	PasswordHash string
	UpdatedAt    time.Time
	// SignedOutAt is the last sign-out or password reset. Sessions that signed
	// in at or before it cannot be restored.
	SignedOutAt *time.Time
}

// PasswordReset is a pending single-use password reset token.
type PasswordReset struct {
	TokenHash  string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// SessionState is a read-only snapshot of a session.
type SessionState struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Identity        *Identity `json:"identity"`
	IsAuthenticated bool      `json:"is_authenticated"`
}
