package identity

import (
	"context"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
)

// Repository defines the interface for identity data operations.
type Repository interface {
	CreateIdentity(ctx context.Context, creds *domain.Credentials) error
	GetIdentityByID(ctx context.Context, id string) (*domain.Credentials, error)
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Credentials, error)
	// UpdatePasswordHash replaces the hash and records signedOutAt as the
	// identity's last sign-out, so no earlier session can be restored.
	UpdatePasswordHash(ctx context.Context, id, hash string, signedOutAt time.Time) error
	RecordSignOut(ctx context.Context, id string, at time.Time) error

	SavePasswordReset(ctx context.Context, reset *domain.PasswordReset) error
	// ConsumePasswordReset deletes an unexpired reset token and returns its identity id.
	ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (string, error)
}
