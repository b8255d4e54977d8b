// Package postgres provides PostgreSQL implementation of the identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the identity.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIdentity inserts a new identity.
func (r *Repository) CreateIdentity(ctx context.Context, creds *domain.Credentials) error {
	query := `
		INSERT INTO identities (email, password_hash)
		VALUES ($1, $2)
		RETURNING id::text, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, creds.Email, creds.PasswordHash).
		Scan(&creds.ID, &creds.CreatedAt, &creds.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.ErrAlreadyExists
		}
		return classify("create identity", err)
	}
	return nil
}

// GetIdentityByID retrieves an identity by its ID.
func (r *Repository) GetIdentityByID(ctx context.Context, id string) (*domain.Credentials, error) {
	query := `
		SELECT id::text, email, password_hash, created_at, updated_at, last_sign_out_at
		FROM identities
		WHERE id::text = $1
	`
	return r.getOne(ctx, "get identity by id", query, id)
}

// GetIdentityByEmail retrieves an identity by its email.
func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (*domain.Credentials, error) {
	query := `
		SELECT id::text, email, password_hash, created_at, updated_at, last_sign_out_at
		FROM identities
		WHERE email = $1
	`
	return r.getOne(ctx, "get identity by email", query, email)
}

func (r *Repository) getOne(ctx context.Context, op, query string, arg string) (*domain.Credentials, error) {
	var creds domain.Credentials
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&creds.ID,
		&creds.Email,
		&creds.PasswordHash,
		&creds.CreatedAt,
		&creds.UpdatedAt,
		&creds.SignedOutAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrIdentityNotFound
		}
		return nil, classify(op, err)
	}
	return &creds, nil
}

// UpdatePasswordHash replaces the password hash of an identity and signs it
// out everywhere as of signedOutAt.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string, signedOutAt time.Time) error {
	query := `
		UPDATE identities
		SET password_hash = $2, updated_at = NOW(), last_sign_out_at = $3
		WHERE id::text = $1
	`
	result, err := r.db.Exec(ctx, query, id, hash, signedOutAt)
	if err != nil {
		return classify("update password hash", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrIdentityNotFound
	}
	return nil
}

// RecordSignOut stores the time of the last sign-out. An older timestamp
// never replaces a newer one.
func (r *Repository) RecordSignOut(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE identities
		SET last_sign_out_at = GREATEST(COALESCE(last_sign_out_at, $2), $2)
		WHERE id::text = $1
	`
	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return classify("record sign out", err)
	}
	return nil
}

// SavePasswordReset stores a password reset token hash.
func (r *Repository) SavePasswordReset(ctx context.Context, reset *domain.PasswordReset) error {
	query := `
		INSERT INTO password_resets (token_hash, identity_id, expires_at, created_at)
		VALUES ($1, $2::uuid, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, reset.TokenHash, reset.IdentityID, reset.ExpiresAt, reset.CreatedAt)
	if err != nil {
		return classify("save password reset", err)
	}
	return nil
}

// ConsumePasswordReset deletes an unexpired token and returns its identity id.
func (r *Repository) ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		DELETE FROM password_resets
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING identity_id::text
	`
	var identityID string
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(&identityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", identity.ErrInvalidResetToken
		}
		return "", classify("consume password reset", err)
	}
	return identityID, nil
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, identity.ErrUnavailable, err)
}
