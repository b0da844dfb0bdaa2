// internal/domain/cart/sync.go
package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Identity names the owner of a cart: exactly one of UserID or GuestToken
// must be set. Email is optional contact data carried alongside.
type Identity struct {
	UserID     *uint
	GuestToken string
	Email      string
}

// Validate enforces the one-owner rule.
func (id Identity) Validate() error {
	if id.UserID != nil && id.GuestToken != "" {
		return errors.New("identity must not carry both a user ID and a guest token")
	}
	if id.UserID == nil && id.GuestToken == "" {
		return errors.New("identity requires either a user ID or a guest token")
	}
	return nil
}

// IsGuest reports whether the identity is guest-token based.
func (id Identity) IsGuest() bool {
	return id.UserID == nil
}

// Tracker pushes cart snapshots to the server-side tracking record.
type Tracker interface {
	TrackCart(ctx context.Context, id Identity, snap Snapshot) error
}

// SyncMiddleware subscribes to a Store and pushes snapshots to a Tracker,
// debounced so a burst of mutations collapses into a single push. Failed
// pushes are logged and dropped; the cart itself is never blocked on sync.
type SyncMiddleware struct {
	store    *Store
	tracker  Tracker
	identity func() Identity
	debounce time.Duration
	timeout  time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	inflight bool
	stopped  bool
}

// NewSyncMiddleware wires a sync middleware to the store. identity is
// consulted at push time so ownership changes are picked up without
// re-wiring. Call Attach to start observing mutations.
func NewSyncMiddleware(store *Store, tracker Tracker, identity func() Identity, debounce time.Duration, logger *logrus.Logger) *SyncMiddleware {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &SyncMiddleware{
		store:    store,
		tracker:  tracker,
		identity: identity,
		debounce: debounce,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Attach subscribes to the store's mutation stream.
func (sm *SyncMiddleware) Attach() {
	sm.store.Subscribe(sm.onMutation)
}

func (sm *SyncMiddleware) onMutation(m Mutation, _ Snapshot) {
	// Snapshot replacements originate from the server side already; pushing
	// them back would loop the data through the tracker for no reason.
	if _, ok := m.(SnapshotReplaced); ok {
		return
	}
	sm.schedule()
}

func (sm *SyncMiddleware) schedule() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return
	}
	sm.pending = true
	if sm.timer == nil {
		sm.timer = time.AfterFunc(sm.debounce, sm.fire)
		return
	}
	sm.timer.Reset(sm.debounce)
}

func (sm *SyncMiddleware) fire() {
	sm.mu.Lock()
	if sm.stopped || sm.inflight || !sm.pending {
		sm.mu.Unlock()
		return
	}
	sm.pending = false
	sm.inflight = true
	sm.mu.Unlock()

	sm.push()

	sm.mu.Lock()
	sm.inflight = false
	reschedule := sm.pending && !sm.stopped
	sm.mu.Unlock()

	if reschedule {
		sm.schedule()
	}
}

// Flush pushes the current snapshot immediately, bypassing the debounce
// window. Used on sign-in transitions and before checkout handoff.
func (sm *SyncMiddleware) Flush(ctx context.Context) {
	sm.mu.Lock()
	if sm.stopped {
		sm.mu.Unlock()
		return
	}
	if sm.timer != nil {
		sm.timer.Stop()
	}
	sm.pending = false
	if sm.inflight {
		sm.mu.Unlock()
		return
	}
	sm.inflight = true
	sm.mu.Unlock()

	sm.pushContext(ctx)

	sm.mu.Lock()
	sm.inflight = false
	sm.mu.Unlock()
}

// Stop cancels any scheduled push and ignores all further mutations.
func (sm *SyncMiddleware) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stopped = true
	sm.pending = false
	if sm.timer != nil {
		sm.timer.Stop()
	}
}

func (sm *SyncMiddleware) push() {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	sm.pushContext(ctx)
}

func (sm *SyncMiddleware) pushContext(ctx context.Context) {
	snap := sm.store.Snapshot()
	if snap.IsEmpty() {
		return
	}

	id := sm.identity()
	if err := id.Validate(); err != nil {
		sm.logger.WithError(err).Warn("Cart sync skipped: no usable identity")
		return
	}

	if err := sm.tracker.TrackCart(ctx, id, snap); err != nil {
		sm.logger.WithFields(logrus.Fields{
			"guest":    id.IsGuest(),
			"items":    len(snap.Lines),
			"subtotal": snap.Subtotal,
		}).WithError(err).Warn("Cart sync failed, snapshot dropped")
	}
}
