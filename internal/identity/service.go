// Package identity implements the identity provider: registration, credential
// checks, password resets and per-session auth handles that push identity changes.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// IdentityCreatedHandler is called after a new identity is persisted.
type IdentityCreatedHandler interface {
	OnIdentityCreated(ctx context.Context, identity *domain.Identity, details RegistrationDetails) error
}

// ResetMailer delivers password reset links.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

// Config contains identity provider settings.
type Config struct {
	BcryptCost    int
	ResetTokenTTL time.Duration
}

// Service implements the identity provider.
type Service struct {
	repo    Repository
	mailer  ResetMailer
	created IdentityCreatedHandler
	config  Config
	hub     *hub
	now     func() time.Time
}

// NewService creates a new identity service. mailer and created may be nil.
func NewService(repo Repository, mailer ResetMailer, created IdentityCreatedHandler, config Config) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = time.Hour
	}

	return &Service{
		repo:    repo,
		mailer:  mailer,
		created: created,
		config:  config,
		hub:     newHub(),
		now:     time.Now,
	}
}

// RegistrationDetails carries the profile attributes collected at sign-up.
type RegistrationDetails struct {
	Name  string
	Phone string
}

// RegisterInput holds data for registering an identity.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// Register creates a new identity.
// The created-identity hook runs after the identity is persisted; its failure is logged
// and does not fail the registration.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.Identity, error) {
	if len(input.Password) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	email := NormalizeEmail(input.Email)

	_, err := s.repo.GetIdentityByEmail(ctx, email)
	if err == nil {
		return nil, ErrAlreadyExists
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, fmt.Errorf("check existing identity: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	creds := &domain.Credentials{
		Identity:     domain.Identity{Email: email},
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateIdentity(ctx, creds); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	identity := creds.Identity

	if s.created != nil {
		details := RegistrationDetails{Name: strings.TrimSpace(input.Name), Phone: strings.TrimSpace(input.Phone)}
		if err := s.created.OnIdentityCreated(ctx, &identity, details); err != nil {
			slog.Error("identity created hook failed",
				"identity_id", identity.ID,
				"error", err,
			)
		}
	}

	return &identity, nil
}

// Authenticate checks a credential pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Identity, error) {
	creds, err := s.repo.GetIdentityByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	identity := creds.Identity
	return &identity, nil
}

// RestoreIdentity returns the identity a session signed into at signedInAt.
// It fails with ErrSessionRevoked when the identity signed out or reset its
// password at or after that moment.
func (s *Service) RestoreIdentity(ctx context.Context, id string, signedInAt time.Time) (*domain.Identity, error) {
	creds, err := s.repo.GetIdentityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if creds.SignedOutAt != nil && !signedInAt.After(*creds.SignedOutAt) {
		return nil, ErrSessionRevoked
	}
	identity := creds.Identity
	return &identity, nil
}

// SendPasswordReset issues a reset token and mails it.
// Unknown emails succeed silently so the endpoint does not reveal which accounts exist.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	creds, err := s.repo.GetIdentityByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			slog.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("get identity: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	reset := &domain.PasswordReset{
		TokenHash:  hashToken(token),
		IdentityID: creds.ID,
		ExpiresAt:  now.Add(s.config.ResetTokenTTL),
		CreatedAt:  now,
	}
	if err := s.repo.SavePasswordReset(ctx, reset); err != nil {
		return fmt.Errorf("save password reset: %w", err)
	}

	if s.mailer == nil {
		slog.Warn("password reset issued but no mailer is configured", "identity_id", creds.ID)
		return nil
	}

	if err := s.mailer.SendPasswordReset(ctx, creds.Email, token); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
// Every auth handle signed into the identity is signed out.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < MinSecretLength {
		return ErrWeakSecret
	}

	identityID, err := s.repo.ConsumePasswordReset(ctx, hashToken(token), s.now())
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePasswordHash(ctx, identityID, string(hash), s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.hub.revoke(ctx, identityID)
	return nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
