package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dodocare/dodocare/internal/domain"
)

// Listener receives identity changes of a Handle. A nil identity means signed out.
type Listener func(ctx context.Context, identity *domain.Identity)

// Subscription is a registered Listener. Unsubscribe is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel as a Subscription.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe stops delivery to the listener.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Handle is the auth state of one client session. It pushes every change of the
// signed-in identity to its subscribers, including changes it did not initiate
// such as a password reset elsewhere.
//
// Every sign-out, detach or revocation starts a new epoch. A sign-in that
// began in an earlier epoch is discarded instead of undoing the sign-out.
type Handle struct {
	service *Service

	mu        sync.Mutex
	current   *domain.Identity
	epoch     uint64
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
}

// NewHandle creates a signed-out auth handle.
func (s *Service) NewHandle() *Handle {
	return &Handle{
		service:   s,
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers fn for identity changes.
func (h *Handle) Subscribe(fn Listener) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.listeners[id] = fn

	return NewSubscription(func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	})
}

// Current returns the signed-in identity, or nil.
func (h *Handle) Current() *domain.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// SignIn authenticates and, on success, makes identity current.
// State is unchanged on failure. If the handle is signed out while the
// credentials are being checked, SignIn returns ErrSignInSuperseded.
func (h *Handle) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	epoch := h.currentEpoch()

	identity, err := h.service.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !h.set(ctx, identity, epoch) {
		return nil, ErrSignInSuperseded
	}
	return identity, nil
}

// Restore makes a previously signed-in identity current again, for example after
// the service restarted while a client still held its session. signedInAt is
// when the client's session was last confirmed signed in; a sign-out or password
// reset since then makes Restore fail with ErrSessionRevoked.
func (h *Handle) Restore(ctx context.Context, identityID string, signedInAt time.Time) (*domain.Identity, error) {
	epoch := h.currentEpoch()

	identity, err := h.service.RestoreIdentity(ctx, identityID, signedInAt)
	if err != nil {
		return nil, fmt.Errorf("restore identity: %w", err)
	}
	if !h.set(ctx, identity, epoch) {
		return nil, ErrSignInSuperseded
	}
	return identity, nil
}

// SignOut clears the current identity and records the sign-out with the provider.
// The local state is cleared even when recording fails.
func (h *Handle) SignOut(ctx context.Context) error {
	prev := h.clear()
	if prev == nil {
		return nil
	}
	h.notify(ctx, nil)

	if err := h.service.repo.RecordSignOut(ctx, prev.ID, h.service.now()); err != nil {
		return fmt.Errorf("record sign out: %w", err)
	}
	return nil
}

// Detach forgets the current identity without notifying subscribers or the provider.
func (h *Handle) Detach() {
	h.clear()
}

// Close detaches the handle and drops every subscriber.
func (h *Handle) Close() {
	h.clear()

	h.mu.Lock()
	h.closed = true
	h.listeners = make(map[uint64]Listener)
	h.mu.Unlock()
}

func (h *Handle) currentEpoch() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.epoch
}

// set makes identity current unless the handle is closed or left epoch.
// Hub membership changes under h.mu so it always matches current.
func (h *Handle) set(ctx context.Context, identity *domain.Identity, epoch uint64) bool {
	h.mu.Lock()
	if h.closed || h.epoch != epoch {
		h.mu.Unlock()
		return false
	}
	if prev := h.current; prev != nil && prev.ID != identity.ID {
		h.service.hub.detach(prev.ID, h)
	}
	h.current = identity
	h.service.hub.attach(identity.ID, h)
	h.mu.Unlock()

	h.notify(ctx, identity)
	return true
}

func (h *Handle) clear() *domain.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current
	h.current = nil
	h.epoch++
	if prev != nil {
		h.service.hub.detach(prev.ID, h)
	}
	return prev
}

// revoke is called by the hub when the identity is no longer valid.
func (h *Handle) revoke(ctx context.Context, identityID string) {
	h.mu.Lock()
	if h.current == nil || h.current.ID != identityID {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.epoch++
	h.mu.Unlock()

	h.notify(ctx, nil)
}

func (h *Handle) notify(ctx context.Context, identity *domain.Identity) {
	h.mu.Lock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, identity)
	}
}

// hub tracks which handles are signed into which identity.
type hub struct {
	mu         sync.Mutex
	byIdentity map[string]map[*Handle]struct{}
}

func newHub() *hub {
	return &hub{byIdentity: make(map[string]map[*Handle]struct{})}
}

func (b *hub) attach(identityID string, h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.byIdentity[identityID]
	if !ok {
		set = make(map[*Handle]struct{})
		b.byIdentity[identityID] = set
	}
	set[h] = struct{}{}
}

func (b *hub) detach(identityID string, h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.byIdentity[identityID]
	delete(set, h)
	if len(set) == 0 {
		delete(b.byIdentity, identityID)
	}
}

func (b *hub) revoke(ctx context.Context, identityID string) {
	b.mu.Lock()
	handles := make([]*Handle, 0, len(b.byIdentity[identityID]))
	for h := range b.byIdentity[identityID] {
		handles = append(handles, h)
	}
	delete(b.byIdentity, identityID)
	b.mu.Unlock()

	for _, h := range handles {
		h.revoke(ctx, identityID)
	}
}

// signedIn reports how many handles are signed into identityID.
func (b *hub) signedIn(identityID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byIdentity[identityID])
}
