// internal/domain/cart/transition.go
package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthState is the settled (or not) authentication state of the session.
type AuthState int

const (
	AuthLoading AuthState = iota
	AuthSignedOut
	AuthSignedIn
)

func (s AuthState) String() string {
	switch s {
	case AuthSignedOut:
		return "signed_out"
	case AuthSignedIn:
		return "signed_in"
	default:
		return "loading"
	}
}

// RemoteCarts is the server-side tracking surface the transition handler
// talks to when an identity boundary is crossed.
type RemoteCarts interface {
	ConvertGuestToUser(ctx context.Context, guestToken string, userID uint) error
	FetchCart(ctx context.Context, id Identity) (Snapshot, bool, error)
}

// TransitionHandler keeps cart continuity across the guest/authenticated
// boundary. It owns the current Identity and reacts to auth-state changes:
// sign-in converts and merges the guest cart into the user's record, sign-out
// falls back to a freshly issued guest token.
type TransitionHandler struct {
	store     *Store
	sync      *SyncMiddleware
	remote    RemoteCarts
	validator CouponValidator
	logger    *logrus.Logger

	mu       sync.Mutex
	state    AuthState
	identity Identity
	newToken func() string
}

// NewTransitionHandler starts in the loading state with the given guest
// token, minting a fresh one when none survives from a previous session.
// Wire Identity as the sync middleware's identity source.
func NewTransitionHandler(store *Store, sm *SyncMiddleware, remote RemoteCarts, validator CouponValidator, guestToken string, logger *logrus.Logger) *TransitionHandler {
	h := &TransitionHandler{
		store:     store,
		sync:      sm,
		remote:    remote,
		validator: validator,
		logger:    logger,
		state:     AuthLoading,
		newToken:  func() string { return uuid.New().String() },
	}
	if guestToken == "" {
		guestToken = h.newToken()
	}
	h.identity = Identity{GuestToken: guestToken}
	return h
}

// Identity returns the current cart owner.
func (h *TransitionHandler) Identity() Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identity
}

// HandleAuthChange applies an auth-state transition. A change to the loading
// state is recorded but acted on only once the state settles, so an in-flight
// auth check is never misread as a sign-out.
func (h *TransitionHandler) HandleAuthChange(ctx context.Context, next AuthState, userID *uint, email string) error {
	h.mu.Lock()
	prev := h.state
	h.state = next
	h.mu.Unlock()

	switch {
	case next == AuthLoading:
		return nil
	case next == AuthSignedIn && prev != AuthSignedIn:
		if userID == nil {
			return fmt.Errorf("sign-in transition without a user ID")
		}
		if err := h.signIn(ctx, *userID, email); err != nil {
			// Roll the state back so the next sign-in notification retries
			// the conversion instead of landing in the no-op branch.
			h.mu.Lock()
			h.state = prev
			h.mu.Unlock()
			return err
		}
		return nil
	case next == AuthSignedOut && prev == AuthSignedIn:
		h.signOut()
		return nil
	case next == AuthSignedOut && prev == AuthLoading:
		return h.restoreGuest(ctx)
	default:
		return nil
	}
}

// signIn converts the guest tracking record to the user, merges the user's
// previous cart with the local one, and pushes the result back through the
// store with an immediate sync.
func (h *TransitionHandler) signIn(ctx context.Context, userID uint, email string) error {
	h.mu.Lock()
	guestToken := h.identity.GuestToken
	h.mu.Unlock()

	// Read the user's previous-session record before conversion merges the
	// guest cart into it server-side, otherwise the guest lines would be
	// counted twice in the client merge below.
	local := h.store.Snapshot()
	merged := local
	userIdentity := Identity{UserID: &userID, Email: email}

	if remote, ok, err := h.remote.FetchCart(ctx, userIdentity); err != nil {
		h.logger.WithError(err).Warn("User cart fetch failed, keeping local cart")
	} else if ok {
		merged = h.mergeSnapshots(ctx, remote, local)
	}

	if guestToken != "" {
		if err := h.remote.ConvertGuestToUser(ctx, guestToken, userID); err != nil {
			// Keep the guest token so the next sign-in attempt can retry
			// from the same starting point.
			h.logger.WithFields(logrus.Fields{
				"user_id": userID,
			}).WithError(err).Error("Guest cart conversion failed")
			return fmt.Errorf("failed to convert guest cart: %w", err)
		}
	}

	h.mu.Lock()
	h.identity = userIdentity
	h.mu.Unlock()

	h.store.ReplaceSnapshot(merged, "sign-in merge")
	h.sync.Flush(ctx)
	return nil
}

// signOut issues a fresh guest token and starts from an empty local cart.
// The authenticated record stays server-side, untouched.
func (h *TransitionHandler) signOut() {
	h.mu.Lock()
	h.identity = Identity{GuestToken: h.newToken()}
	h.mu.Unlock()

	h.store.ReplaceSnapshot(Snapshot{}, "sign-out reset")
}

// restoreGuest reconstitutes the local cart from the guest's tracking record
// on initial load. A missing record or fetch failure leaves the cart empty.
func (h *TransitionHandler) restoreGuest(ctx context.Context) error {
	h.mu.Lock()
	id := h.identity
	h.mu.Unlock()

	snap, ok, err := h.remote.FetchCart(ctx, id)
	if err != nil {
		h.logger.WithError(err).Warn("Guest cart restore failed")
		return nil
	}
	if !ok || snap.IsEmpty() {
		return nil
	}
	h.store.ReplaceSnapshot(snap, "guest restore")
	return nil
}

// mergeSnapshots combines a stored cart with the live local one. Quantities
// for the same line sum, the local unit price wins when the two disagree,
// and any coupon is re-validated against the merged subtotal rather than
// carried over blind.
func (h *TransitionHandler) mergeSnapshots(ctx context.Context, stored, local Snapshot) Snapshot {
	merged := make([]LineItem, 0, len(stored.Lines)+len(local.Lines))
	index := make(map[string]int, len(stored.Lines))
	for _, line := range stored.Lines {
		index[line.LineID] = len(merged)
		merged = append(merged, line)
	}
	for _, line := range local.Lines {
		if i, ok := index[line.LineID]; ok {
			merged[i].Quantity += line.Quantity
			merged[i].UnitPrice = line.UnitPrice
			continue
		}
		merged = append(merged, line)
	}

	out := Snapshot{Lines: merged, Subtotal: SubtotalOf(merged)}

	coupon := local.Coupon
	if coupon == nil {
		coupon = stored.Coupon
	}
	if coupon == nil {
		return out
	}

	applied, err := h.validator.ValidateCoupon(ctx, coupon.Code, out.Subtotal, len(merged) > 0)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"coupon_code": coupon.Code,
		}).WithError(err).Info("Coupon dropped during cart merge")
		return out
	}
	out.Coupon = applied
	out.Discount = applied.DiscountFor(out.Subtotal)
	return out
}
