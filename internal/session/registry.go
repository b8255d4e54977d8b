package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/dodocare/dodocare/internal/pkg/httputil"
	"github.com/google/uuid"
)

// RegistryConfig contains session lifetime settings.
type RegistryConfig struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// DefaultRegistryConfig returns default session lifetime settings.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTimeout:  30 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Registry owns the live sessions of the process.
type Registry struct {
	config    RegistryConfig
	manager   ManagerConfig
	newHandle func() AuthHandle
	roles     RoleLookup
	tokens    *Tokens
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Manager

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry. newHandle must return a fresh,
// signed-out handle for every call.
func NewRegistry(
	config RegistryConfig,
	manager ManagerConfig,
	newHandle func() AuthHandle,
	roles RoleLookup,
	tokens *Tokens,
) *Registry {
	logger := manager.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager.Logger = logger

	return &Registry{
		config:    config,
		manager:   manager,
		newHandle: newHandle,
		roles:     roles,
		tokens:    tokens,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Manager),
		stopCh:    make(chan struct{}),
	}
}

// Create starts a new guest session.
func (r *Registry) Create() *Manager {
	m := NewManager(uuid.NewString(), r.newHandle(), r.roles, r.manager)
	m.touch(r.now())

	r.mu.Lock()
	r.sessions[m.ID()] = m
	r.mu.Unlock()

	r.logger.Debug("session created", "session_id", m.ID())
	return m
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[id]
	return m, ok
}

// Resume returns the session id, recreating it when the process no longer holds
// it. A recreated session is signed back into identityID when one is given and
// the identity has not signed out since signedInAt; otherwise it continues as
// a guest.
func (r *Registry) Resume(ctx context.Context, id, identityID string, signedInAt time.Time) *Manager {
	if m, ok := r.Get(id); ok {
		return m
	}

	m := NewManager(id, r.newHandle(), r.roles, r.manager)
	m.touch(r.now())

	if identityID != "" {
		if err := m.Restore(ctx, identityID, signedInAt); err != nil {
			r.logger.Warn("failed to restore session identity",
				"session_id", id,
				"identity_id", identityID,
				"error", err,
			)
		}
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		m.Close()
		return existing
	}
	r.sessions[id] = m
	r.mu.Unlock()

	r.logger.Info("session resumed", "session_id", id, "role", m.Role())
	return m
}

// ResolveSession maps a bearer token to its live session.
func (r *Registry) ResolveSession(ctx context.Context, token string) (httputil.Session, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	m := r.Resume(ctx, claims.SessionID(), claims.IdentityID(), claims.IssuedAtTime())
	m.touch(r.now())
	return m, nil
}

// Token issues a token for the current state of m.
func (r *Registry) Token(m *Manager) (string, time.Time, error) {
	identityID := ""
	if id := m.Identity(); id != nil && m.Role() == domain.RoleUser {
		identityID = id.ID
	}

	token, expiresAt, err := r.tokens.Issue(m.ID(), identityID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", err)
	}
	return token, expiresAt, nil
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	m, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		m.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Start launches the idle session reaper.
func (r *Registry) Start(ctx context.Context) {
	if r.config.ReapInterval <= 0 || r.config.IdleTimeout <= 0 {
		r.logger.Info("session reaper disabled")
		return
	}

	r.logger.Info("starting session reaper",
		"idle_timeout", r.config.IdleTimeout,
		"reap_interval", r.config.ReapInterval,
	)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop stops the reaper. It is safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Close stops the reaper and closes every session.
func (r *Registry) Close() {
	r.Stop()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range sessions {
		m.Close()
	}
	r.recordActive()
}

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap closes sessions idle for longer than IdleTimeout. It returns how many were closed.
func (r *Registry) reap() int {
	cutoff := r.now().Add(-r.config.IdleTimeout)

	r.mu.Lock()
	var idle []*Manager
	for id, m := range r.sessions {
		if m.idleSince().Before(cutoff) {
			idle = append(idle, m)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, m := range idle {
		m.Close()
	}
	if len(idle) > 0 {
		sessionsReaped.Add(float64(len(idle)))
		r.logger.Debug("reaped idle sessions", "count", len(idle))
	}

	r.recordActive()
	return len(idle)
}

func (r *Registry) recordActive() {
	counts := map[domain.Role]int{
		domain.RoleGuest: 0,
		domain.RoleUser:  0,
		domain.RoleAdmin: 0,
	}

	r.mu.Lock()
	for _, m := range r.sessions {
		counts[m.Role()]++
	}
	r.mu.Unlock()

	for role, n := range counts {
		activeSessions.WithLabelValues(string(role)).Set(float64(n))
	}
}
