// internal/domain/cart/store.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Coupon rejection reasons surfaced by ApplyCoupon.
const (
	CouponErrInvalidCode      = "INVALID_CODE"
	CouponErrBelowMinPurchase = "BELOW_MIN_PURCHASE"
	CouponErrExpired          = "EXPIRED"
	CouponErrUsageCapReached  = "USAGE_CAP_REACHED"
	CouponErrEmptyCart        = "EMPTY_CART"
)

// CouponRejectedError reports why a coupon was refused. The cart is left
// unchanged when ApplyCoupon returns one.
type CouponRejectedError struct {
	Code   string // one of the CouponErr constants
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon rejected (%s): %s", e.Code, e.Reason)
}

// AsCouponRejected unwraps a CouponRejectedError if err carries one.
func AsCouponRejected(err error) (*CouponRejectedError, bool) {
	var rejected *CouponRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}

// CouponValidator checks a coupon code against the authoritative rule set.
// Implementations return a CouponRejectedError for ineligible codes.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, subtotal int64, hasItems bool) (*AppliedCoupon, error)
}

// Subscriber receives every mutation together with the post-mutation snapshot.
type Subscriber func(m Mutation, snap Snapshot)

// Store holds the authoritative client-side cart. It is owned by the
// application root and injected into its collaborators; all mutations go
// through it and are observable via Subscribe.
type Store struct {
	mu        sync.Mutex
	lines     []LineItem
	coupon    *AppliedCoupon
	discount  int64
	updatedAt time.Time

	validator   CouponValidator
	subscribers []Subscriber
	nowFunc     func() time.Time
}

// NewStore creates an empty cart store backed by the given coupon validator.
func NewStore(validator CouponValidator) *Store {
	return &Store{
		validator: validator,
		nowFunc:   time.Now,
	}
}

// Subscribe registers a subscriber for all future mutations.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Snapshot returns a copy of the current cart state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddItem adds qty of the given line to the cart, merging by line identity:
// the same product+variation sums quantities rather than duplicating a row.
func (s *Store) AddItem(item LineItem, qty int) Snapshot {
	if qty < 1 {
		qty = 1
	}
	if item.LineID == "" {
		item.LineID = DeriveLineID(item)
	}

	s.mu.Lock()
	merged := false
	for i := range s.lines {
		if s.lines[i].LineID == item.LineID {
			s.lines[i].Quantity += qty
			s.lines[i].UnitPrice = item.UnitPrice // refresh price in case it changed
			merged = true
			break
		}
	}
	if !merged {
		item.Quantity = qty
		s.lines = append(s.lines, item)
	}
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, ItemAdded{LineID: item.LineID, Quantity: qty}, snap)
	return snap
}

// Decrement lowers a line's quantity by qty; reaching zero (or below)
// removes the line entirely. Unknown line IDs are a no-op.
func (s *Store) Decrement(lineID string, qty int) Snapshot {
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	removed := false
	found := false
	for i := range s.lines {
		if s.lines[i].LineID != lineID {
			continue
		}
		found = true
		s.lines[i].Quantity -= qty
		if s.lines[i].Quantity < 1 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			removed = true
		}
		break
	}
	if !found {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, ItemDecremented{LineID: lineID, Quantity: qty, Removed: removed}, snap)
	return snap
}

// Remove drops a line from the cart regardless of quantity.
func (s *Store) Remove(lineID string) Snapshot {
	s.mu.Lock()
	found := false
	for i := range s.lines {
		if s.lines[i].LineID == lineID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, ItemRemoved{LineID: lineID}, snap)
	return snap
}

// Clear removes all lines and any applied coupon.
func (s *Store) Clear() Snapshot {
	s.mu.Lock()
	s.lines = nil
	s.coupon = nil
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, CartCleared{}, snap)
	return snap
}

// ApplyCoupon validates the code against the server-side rule set before
// mutating state. On rejection the cart is left unchanged and the
// CouponRejectedError is returned.
func (s *Store) ApplyCoupon(ctx context.Context, code string) (Snapshot, error) {
	s.mu.Lock()
	subtotal := SubtotalOf(s.lines)
	hasItems := len(s.lines) > 0
	s.mu.Unlock()

	applied, err := s.validator.ValidateCoupon(ctx, code, subtotal, hasItems)
	if err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	s.coupon = applied
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, CouponApplied{Code: applied.Code}, snap)
	return snap, nil
}

// RemoveCoupon detaches the applied coupon, if any.
func (s *Store) RemoveCoupon() Snapshot {
	s.mu.Lock()
	if s.coupon == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	code := s.coupon.Code
	s.coupon = nil
	s.recomputeLocked()
	snap := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, CouponRemoved{Code: code}, snap)
	return snap
}

// ReplaceSnapshot swaps the whole cart state in from the outside (initial
// load from the tracking record, sign-in merge). Subscribers see a
// SnapshotReplaced mutation, which sync middleware ignores.
func (s *Store) ReplaceSnapshot(snap Snapshot, reason string) Snapshot {
	s.mu.Lock()
	s.lines = append([]LineItem(nil), snap.Lines...)
	s.coupon = snap.Coupon
	s.recomputeLocked()
	out := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, SnapshotReplaced{Reason: reason}, out)
	return out
}

// recomputeLocked refreshes the discount and timestamp after any mutation.
// Caller must hold s.mu.
func (s *Store) recomputeLocked() {
	subtotal := SubtotalOf(s.lines)
	s.discount = s.coupon.DiscountFor(subtotal)
	s.updatedAt = s.nowFunc().UTC()
}

func (s *Store) snapshotLocked() Snapshot {
	lines := make([]LineItem, len(s.lines))
	copy(lines, s.lines)
	return Snapshot{
		Lines:     lines,
		Coupon:    s.coupon,
		Discount:  s.discount,
		Subtotal:  SubtotalOf(s.lines),
		UpdatedAt: s.updatedAt,
	}
}

func (s *Store) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	return subs
}

// notify runs outside the store lock so subscribers may read the store.
func notify(subs []Subscriber, m Mutation, snap Snapshot) {
	for _, fn := range subs {
		fn(m, snap)
	}
}
