package identity

import "errors"

// Identity errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAlreadyExists      = errors.New("an account with this email already exists")
	ErrWeakSecret         = errors.New("password must be at least 8 characters")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidResetToken  = errors.New("password reset link is invalid or expired")
	ErrUnavailable        = errors.New("identity provider unavailable")
	ErrSessionRevoked     = errors.New("session was signed out, please sign in again")
	ErrSignInSuperseded   = errors.New("sign-in was cancelled by a sign-out on this session")
)

// MinSecretLength is the shortest password accepted at registration and reset.
const MinSecretLength = 8
