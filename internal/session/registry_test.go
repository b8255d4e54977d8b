package session

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRegistry struct {
	*Registry
	handles []*fakeHandle
}

func newTestRegistry(t *testing.T, config RegistryConfig) *testRegistry {
	t.Helper()
	tr := &testRegistry{}
	accounts := newFakeAccounts()
	accounts.add("id-1", "pat@example.com", "longenough1")
	tr.Registry = NewRegistry(config, testManagerConfig(), func() AuthHandle {
		h := newFakeHandleFor(accounts)
		tr.handles = append(tr.handles, h)
		return h
	}, nil, NewTokens("test-secret", time.Hour))
	t.Cleanup(tr.Close)
	return tr
}

func TestRegistry_CreateAndResolve(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())

	m := r.Create()
	token, _, err := r.Token(m)
	require.NoError(t, err)

	sess, err := r.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Same(t, m, sess)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ResolveRejectsBadToken(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())

	_, err := r.ResolveSession(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokens("other-secret", time.Hour)
	token, _, err := other.Issue("sid", "")
	require.NoError(t, err)
	_, err = r.ResolveSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, r.Len())
}

func TestRegistry_ResumeRestoresSignedInUser(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())

	m := r.Create()
	require.NoError(t, m.LoginWithCredentials(context.Background(), "pat@example.com", "longenough1"))
	token, _, err := r.Token(m)
	require.NoError(t, err)

	r.Remove(m.ID())
	require.Zero(t, r.Len())

	sess, err := r.ResolveSession(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, m.ID(), sess.ID())
	assert.Equal(t, domain.RoleUser, sess.Role())
	require.NotNil(t, sess.Identity())
	assert.Equal(t, "id-1", sess.Identity().ID)
}

func TestRegistry_AdminIsNotRestored(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())

	m := r.Create()
	require.True(t, m.LoginAsAdmin(testAdmin.Identifier, testAdmin.Secret))
	token, _, err := r.Token(m)
	require.NoError(t, err)

	claims, err := r.tokens.Parse(token)
	require.NoError(t, err)
	assert.Empty(t, claims.IdentityID())

	r.Remove(m.ID())
	sess, err := r.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGuest, sess.Role())
}

func TestRegistry_ResumeWithUnknownIdentityIsGuest(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())

	token, _, err := r.tokens.Issue("sid-1", "deleted-identity")
	require.NoError(t, err)

	sess, err := r.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sess.ID())
	assert.Equal(t, domain.RoleGuest, sess.Role())
}

func TestRegistry_ReapClosesIdleSessions(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: time.Minute, ReapInterval: time.Minute})
	now := time.Now()
	r.now = func() time.Time { return now }

	idle := r.Create()
	now = now.Add(2 * time.Minute)
	active := r.Create()

	assert.Equal(t, 1, r.reap())

	_, ok := r.Get(idle.ID())
	assert.False(t, ok)
	_, ok = r.Get(active.ID())
	assert.True(t, ok)
	assert.True(t, r.handles[0].closed)
	assert.False(t, r.handles[1].closed)
}

func TestRegistry_StartStop(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{IdleTimeout: time.Millisecond, ReapInterval: 5 * time.Millisecond})

	r.Create()
	r.Start(context.Background())

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
}

func TestRegistry_CloseReleasesSessions(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())
	r.Create()
	r.Create()

	r.Close()

	assert.Zero(t, r.Len())
	for _, h := range r.handles {
		assert.True(t, h.closed)
	}
}

func TestRegistry_LogoutIsNotUndoneByEarlierToken(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())
	ctx := context.Background()

	m := r.Create()
	require.NoError(t, m.LoginWithCredentials(ctx, "pat@example.com", "longenough1"))
	signedIn, _, err := r.Token(m)
	require.NoError(t, err)

	m.Logout(ctx)
	r.Remove(m.ID())

	sess, err := r.ResolveSession(ctx, signedIn)
	require.NoError(t, err)
	assert.Equal(t, m.ID(), sess.ID())
	assert.Equal(t, domain.RoleGuest, sess.Role())
	assert.Nil(t, sess.Identity())
}

func TestRegistry_SignInAfterLogoutIsRestored(t *testing.T) {
	r := newTestRegistry(t, DefaultRegistryConfig())
	ctx := context.Background()

	m := r.Create()
	require.NoError(t, m.LoginWithCredentials(ctx, "pat@example.com", "longenough1"))
	m.Logout(ctx)
	require.NoError(t, m.LoginWithCredentials(ctx, "pat@example.com", "longenough1"))

	r.tokens.now = func() time.Time { return time.Now().Add(time.Second) }
	token, _, err := r.Token(m)
	require.NoError(t, err)
	r.Remove(m.ID())

	sess, err := r.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, sess.Role())
}

func TestRegistry_LogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	config := testManagerConfig()
	config.Logger = logger
	r := NewRegistry(DefaultRegistryConfig(), config, func() AuthHandle { return newFakeHandle() }, nil, NewTokens("test-secret", time.Hour))
	t.Cleanup(r.Close)

	token, _, err := r.tokens.Issue("sid-7", "")
	require.NoError(t, err)
	_, err = r.ResolveSession(context.Background(), token)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "session resumed")
	assert.Contains(t, buf.String(), "session_id=sid-7")
}
