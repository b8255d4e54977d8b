package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []*domain.Identity
}

func (r *recorder) listen(_ context.Context, identity *domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, identity)
}

func (r *recorder) snapshot() []*domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Identity(nil), r.events...)
}

func registerTestIdentity(t *testing.T, service *Service, email string) *domain.Identity {
	t.Helper()
	identity, err := service.Register(context.Background(), RegisterInput{Email: email, Password: "longenough1"})
	require.NoError(t, err)
	return identity
}

func TestHandle_SignInPushesIdentity(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	h.Subscribe(rec.listen)

	identity, err := h.SignIn(context.Background(), "pat@example.com", "longenough1")
	require.NoError(t, err)

	assert.Equal(t, registered.ID, identity.ID)
	assert.Equal(t, registered.ID, h.Current().ID)
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, registered.ID, events[0].ID)
}

func TestHandle_FailedSignInPushesNothing(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	h.Subscribe(rec.listen)

	_, err := h.SignIn(context.Background(), "pat@example.com", "wrong-password")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, h.Current())
	assert.Empty(t, rec.snapshot())
}

func TestHandle_SignOutClearsEvenIfRecordingFails(t *testing.T) {
	repo := newMockRepository()
	repo.signOutErr = errors.New("connection reset")
	service := newTestService(repo, nil, nil)
	registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	h.Subscribe(rec.listen)
	_, err := h.SignIn(context.Background(), "pat@example.com", "longenough1")
	require.NoError(t, err)

	err = h.SignOut(context.Background())

	assert.Error(t, err)
	assert.True(t, repo.signOutCalled)
	assert.Nil(t, h.Current())
	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Nil(t, events[1])
}

func TestHandle_UnsubscribeStopsDelivery(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	sub := h.Subscribe(rec.listen)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err := h.SignIn(context.Background(), "pat@example.com", "longenough1")
	require.NoError(t, err)

	assert.Empty(t, rec.snapshot())
}

func TestHandle_RestoreAndRevokeOnPasswordReset(t *testing.T) {
	repo := newMockRepository()
	mailer := &mockMailer{}
	service := newTestService(repo, mailer, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")
	ctx := context.Background()

	phone := service.NewHandle()
	tablet := service.NewHandle()
	phoneEvents, tabletEvents := &recorder{}, &recorder{}
	phone.Subscribe(phoneEvents.listen)
	tablet.Subscribe(tabletEvents.listen)

	_, err := phone.SignIn(ctx, "pat@example.com", "longenough1")
	require.NoError(t, err)
	_, err = tablet.Restore(ctx, registered.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, service.hub.signedIn(registered.ID))

	require.NoError(t, service.SendPasswordReset(ctx, "pat@example.com"))
	require.NoError(t, service.ResetPassword(ctx, mailer.token, "brandnew99"))

	assert.Nil(t, phone.Current())
	assert.Nil(t, tablet.Current())
	assert.Equal(t, 0, service.hub.signedIn(registered.ID))
	for _, rec := range []*recorder{phoneEvents, tabletEvents} {
		events := rec.snapshot()
		require.Len(t, events, 2)
		assert.NotNil(t, events[0])
		assert.Nil(t, events[1])
	}
}

func TestHandle_RestoreUnknownIdentity(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	h := service.NewHandle()

	_, err := h.Restore(context.Background(), "missing", time.Now())

	assert.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Nil(t, h.Current())
}

func TestHandle_DetachIsSilent(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	h.Subscribe(rec.listen)
	_, err := h.SignIn(context.Background(), "pat@example.com", "longenough1")
	require.NoError(t, err)

	h.Detach()

	assert.Nil(t, h.Current())
	assert.Len(t, rec.snapshot(), 1)
	assert.Equal(t, 0, service.hub.signedIn(registered.ID))
}

func TestHandle_SignOutDuringSignInWins(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(repo, nil, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")

	h := service.NewHandle()
	rec := &recorder{}
	h.Subscribe(rec.listen)

	repo.mu.Lock()
	repo.emailEntered = make(chan struct{})
	repo.emailGate = make(chan struct{})
	repo.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := h.SignIn(context.Background(), "pat@example.com", "longenough1")
		done <- err
	}()
	<-repo.emailEntered

	require.NoError(t, h.SignOut(context.Background()))
	close(repo.emailGate)

	assert.ErrorIs(t, <-done, ErrSignInSuperseded)
	assert.Nil(t, h.Current())
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 0, service.hub.signedIn(registered.ID))
}

func TestHandle_RestoreRejectsSessionsOlderThanSignOut(t *testing.T) {
	service := newTestService(newMockRepository(), nil, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")
	ctx := context.Background()

	signedInAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return signedInAt.Add(time.Hour) }

	h := service.NewHandle()
	_, err := h.SignIn(ctx, "pat@example.com", "longenough1")
	require.NoError(t, err)
	require.NoError(t, h.SignOut(ctx))

	tests := []struct {
		name       string
		signedInAt time.Time
		wantErr    error
	}{
		{"signed in before sign-out", signedInAt, ErrSessionRevoked},
		{"signed in at sign-out", signedInAt.Add(time.Hour), ErrSessionRevoked},
		{"signed in after sign-out", signedInAt.Add(time.Hour + time.Microsecond), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restored := service.NewHandle()
			t.Cleanup(restored.Close)

			identity, err := restored.Restore(ctx, registered.ID, tt.signedInAt)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, restored.Current())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.ID, identity.ID)
		})
	}
}

func TestHandle_RestoreRejectsSessionsOlderThanPasswordReset(t *testing.T) {
	repo := newMockRepository()
	mailer := &mockMailer{}
	service := newTestService(repo, mailer, nil)
	registered := registerTestIdentity(t, service, "pat@example.com")
	ctx := context.Background()

	signedInAt := time.Now()
	require.NoError(t, service.SendPasswordReset(ctx, "pat@example.com"))
	service.now = func() time.Time { return signedInAt.Add(time.Minute) }
	require.NoError(t, service.ResetPassword(ctx, mailer.token, "brandnew99"))

	_, err := service.NewHandle().Restore(ctx, registered.ID, signedInAt)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}
