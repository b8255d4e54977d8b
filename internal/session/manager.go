// Package session tracks who is using a client session and what they may do.
//
// A Manager is the single source of truth for the role of one client session.
// It listens to the session's identity handle and re-derives the role whenever
// the signed-in identity changes, whether the change came from this session or
// from the identity provider.
//
// Every state change bumps a generation. An identity change commits its role
// only if no other change happened while the role was being resolved and the
// handle still holds that identity, so a sign-out is never undone by a slower
// sign-in.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/identity"
	"github.com/dodocare/dodocare/internal/pkg/callpolicy"
)

// ErrRequestInFlight is returned when a login or mutation is submitted while
// another one is still running on the same session.
var ErrRequestInFlight = errors.New("another request is still in progress")

// AuthHandle is the per-session view of the identity provider.
type AuthHandle interface {
	SignIn(ctx context.Context, email, password string) (*domain.Identity, error)
	SignOut(ctx context.Context) error
	Restore(ctx context.Context, identityID string, signedInAt time.Time) (*domain.Identity, error)
	Current() *domain.Identity
	Detach()
	Subscribe(fn identity.Listener) *identity.Subscription
	Close()
}

// RoleLookup reads the role attribute of an identity's profile record.
type RoleLookup interface {
	LookupRole(ctx context.Context, identityID string) (role string, found bool, err error)
}

// AdminCredentials is the out-of-band administrator credential pair.
type AdminCredentials struct {
	Identifier string
	Secret     string
}

// ManagerConfig contains the settings shared by every Manager.
type ManagerConfig struct {
	Admin  AdminCredentials
	Policy callpolicy.Policy
	Logger *slog.Logger
}

// Manager holds the state of one client session.
type Manager struct {
	id     string
	handle AuthHandle
	roles  RoleLookup
	config ManagerConfig
	logger *slog.Logger

	mu       sync.RWMutex
	role     domain.Role
	identity *domain.Identity
	gen      uint64

	busy     atomic.Bool
	lastSeen atomic.Int64

	sub       *identity.Subscription
	closeOnce sync.Once
}

// NewManager creates a guest session and subscribes it to handle.
func NewManager(id string, handle AuthHandle, roles RoleLookup, config ManagerConfig) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		id:     id,
		handle: handle,
		roles:  roles,
		config: config,
		logger: logger.With("session_id", id),
		role:   domain.RoleGuest,
	}
	m.touch(time.Now())
	m.sub = handle.Subscribe(m.onIdentityChange)
	return m
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// Role returns the current role.
func (m *Manager) Role() domain.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.role
}

// Identity returns the signed-in identity, or nil for guests and administrators.
func (m *Manager) Identity() *domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// IsAuthenticated reports whether the session holds a non-guest role.
func (m *Manager) IsAuthenticated() bool {
	return m.Role() != domain.RoleGuest
}

// State returns a snapshot of the session.
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return domain.SessionState{
		ID:              m.id,
		Role:            m.role,
		Identity:        m.identity,
		IsAuthenticated: m.role != domain.RoleGuest,
	}
}

// Begin marks a request as in flight on this session.
// It returns ErrRequestInFlight while another request holds the session.
func (m *Manager) Begin() (func(), error) {
	if !m.busy.CompareAndSwap(false, true) {
		return nil, ErrRequestInFlight
	}
	var once sync.Once
	return func() { once.Do(func() { m.busy.Store(false) }) }, nil
}

// LoginWithCredentials signs an identity in. On failure the session is unchanged.
// The role is resolved by the identity change the handle pushes on success.
func (m *Manager) LoginWithCredentials(ctx context.Context, email, password string) error {
	end, err := m.Begin()
	if err != nil {
		return err
	}
	defer end()

	if email == "" || password == "" {
		loginAttempts.WithLabelValues("credentials", "rejected").Inc()
		return identity.ErrInvalidCredentials
	}

	ctx, cancel := m.config.Policy.Context(ctx, callpolicy.Login)
	defer cancel()

	signedIn, err := m.handle.SignIn(ctx, email, password)
	if err == nil && !m.holds(signedIn) {
		err = identity.ErrSignInSuperseded
	}
	if err != nil {
		err = unavailableOnTimeout(err)
		loginAttempts.WithLabelValues("credentials", outcome(err)).Inc()
		return err
	}

	loginAttempts.WithLabelValues("credentials", "success").Inc()
	m.logger.Info("session signed in", "role", m.Role())
	return nil
}

// LoginAsAdmin checks the administrator credential pair. On a match the session
// becomes admin without an identity; otherwise it is unchanged.
// There is no lockout and no rate limiting.
func (m *Manager) LoginAsAdmin(identifier, secret string) bool {
	end, err := m.Begin()
	if err != nil {
		return false
	}
	defer end()

	if !m.adminMatches(identifier, secret) {
		loginAttempts.WithLabelValues("admin", "rejected").Inc()
		return false
	}

	m.handle.Detach()
	m.reset(domain.RoleAdmin)

	loginAttempts.WithLabelValues("admin", "success").Inc()
	m.logger.Info("session signed in as administrator")
	return true
}

func (m *Manager) adminMatches(identifier, secret string) bool {
	admin := m.config.Admin
	if admin.Identifier == "" || admin.Secret == "" {
		return false
	}
	idOK := subtle.ConstantTimeCompare([]byte(identifier), []byte(admin.Identifier)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(admin.Secret)) == 1
	return idOK && secretOK
}

// LoginAsGuest turns the session into a guest session. It always succeeds,
// and a credential login still in flight is discarded.
func (m *Manager) LoginAsGuest() {
	m.handle.Detach()
	m.reset(domain.RoleGuest)
	loginAttempts.WithLabelValues("guest", "success").Inc()
}

// Logout signs out with the provider on a best-effort basis and resets the
// session to guest whatever the provider answered. A credential login still
// in flight is discarded.
func (m *Manager) Logout(ctx context.Context) {
	ctx, cancel := m.config.Policy.Context(ctx, callpolicy.Write)
	defer cancel()

	if err := m.handle.SignOut(ctx); err != nil {
		m.logger.Warn("provider sign out failed", "error", err)
	}
	m.reset(domain.RoleGuest)
	m.logger.Info("session signed out")
}

// Restore re-attaches an identity the client was signed into at signedInAt,
// before the session was last seen by this process. The role follows from the
// pushed identity change.
func (m *Manager) Restore(ctx context.Context, identityID string, signedInAt time.Time) error {
	ctx, cancel := m.config.Policy.Context(ctx, callpolicy.Login)
	defer cancel()

	restored, err := m.handle.Restore(ctx, identityID, signedInAt)
	if err != nil {
		return unavailableOnTimeout(err)
	}
	if !m.holds(restored) {
		return identity.ErrSignInSuperseded
	}
	return nil
}

// Close unsubscribes from the identity handle and releases it.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.sub.Unsubscribe()
		m.handle.Close()
	})
}

func (m *Manager) onIdentityChange(ctx context.Context, id *domain.Identity) {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	role := domain.RoleGuest
	if id != nil {
		role = m.resolveRole(ctx, id)
	}

	if !m.commit(gen, role, id) {
		m.logger.Debug("discarding superseded identity change")
		return
	}
	if id == nil {
		m.logger.Info("identity cleared by provider")
	}
}

// commit applies an identity change resolved while the session was at gen.
func (m *Manager) commit(gen uint64, role domain.Role, id *domain.Identity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || !sameIdentity(m.handle.Current(), id) {
		return false
	}
	m.gen++
	m.role = role
	m.identity = id
	return true
}

// reset moves the session to a role without an identity, superseding any
// identity change still being resolved.
func (m *Manager) reset(role domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.role = role
	m.identity = nil
}

// holds reports whether the session is signed into id.
func (m *Manager) holds(id *domain.Identity) bool {
	cur := m.Identity()
	return id != nil && cur != nil && cur.ID == id.ID
}

func sameIdentity(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// resolveRole derives the role of a signed-in identity. Every outcome of the
// lookup yields RoleUser: a missing record or a failed lookup must not lock out
// an authenticated identity, and administrator access is granted only through
// the administrator credential check.
func (m *Manager) resolveRole(ctx context.Context, id *domain.Identity) domain.Role {
	if m.roles == nil {
		return domain.RoleUser
	}

	ctx, cancel := m.config.Policy.Context(ctx, callpolicy.Lookup)
	defer cancel()

	attr, found, err := m.roles.LookupRole(ctx, id.ID)
	switch {
	case err != nil:
		roleLookups.WithLabelValues("error").Inc()
		m.logger.Warn("role lookup failed, defaulting to user",
			"identity_id", id.ID,
			"error", err,
		)
	case !found:
		roleLookups.WithLabelValues("missing").Inc()
		m.logger.Info("no profile record, defaulting to user", "identity_id", id.ID)
	case domain.Role(attr) != domain.RoleUser:
		roleLookups.WithLabelValues("ignored").Inc()
		m.logger.Warn("ignoring profile role attribute",
			"identity_id", id.ID,
			"role_attribute", attr,
		)
	default:
		roleLookups.WithLabelValues("found").Inc()
	}
	return domain.RoleUser
}

func (m *Manager) touch(now time.Time) {
	m.lastSeen.Store(now.UnixNano())
}

func (m *Manager) idleSince() time.Time {
	return time.Unix(0, m.lastSeen.Load())
}

// unavailableOnTimeout reports an expired deadline as an unreachable provider.
func unavailableOnTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, identity.ErrUnavailable) {
		return fmt.Errorf("%w: %w", identity.ErrUnavailable, err)
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "rejected"
	case errors.Is(err, identity.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, identity.ErrSignInSuperseded):
		return "superseded"
	default:
		return "error"
	}
}
