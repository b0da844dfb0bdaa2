// internal/domain/payment/session.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// ErrSessionNotFound indicates no session exists for the identifier, either
// because it never existed or because it expired
var ErrSessionNotFound = errors.New("payment session not found")

// SessionStatus represents the session's completion state
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Address is the shipping address captured at checkout
type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

// Session is a point-in-time checkout attempt handed to the external payment
// processor. Read-only once created, except for the completion status which
// the processor's webhook (or return redirect) advances.
type Session struct {
	ID         string  `json:"id"`
	UserID     *uint   `json:"user_id,omitempty"`
	GuestToken string  `json:"guest_token,omitempty"`
	GuestEmail string  `json:"guest_email,omitempty"`

	Items      []cart.LineItem `json:"items"`
	CouponCode string          `json:"coupon_code,omitempty"`

	// Amounts in cents
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Tax      int64  `json:"tax"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`

	ShippingAddress Address `json:"shipping_address"`

	Provider    string        `json:"provider"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// IsCompleted reports whether payment finished for this session
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// Identity reconstructs the buyer's identity
func (s *Session) Identity() cart.Identity {
	return cart.Identity{UserID: s.UserID, GuestToken: s.GuestToken, Email: s.GuestEmail}
}

// BuildSession prices a cart snapshot into a new pending session. Shipping is
// free above the configured threshold and tax applies to the discounted
// subtotal.
func BuildSession(snap cart.Snapshot, id cart.Identity, addr Address, provider string, cfg config.CheckoutConfig) *Session {
	discounted := snap.Subtotal - snap.Discount
	if discounted < 0 {
		discounted = 0
	}

	var shipping int64
	if discounted < cfg.FreeShippingThreshold {
		shipping = cfg.StandardShippingCost
	}

	// Integer cents throughout: the percentage rate converts to basis points
	// once, then tax is pure int64 arithmetic.
	rateBasisPoints := int64(math.Round(cfg.TaxRate * 100))
	tax := discounted * rateBasisPoints / 10000

	session := &Session{
		ID:         "cs_" + uuid.New().String(),
		UserID:     id.UserID,
		GuestToken: id.GuestToken,
		GuestEmail: id.Email,
		Items:      snap.Lines,
		Subtotal:   snap.Subtotal,
		Discount:   snap.Discount,
		Tax:        tax,
		Shipping:   shipping,
		Total:      discounted + tax + shipping,
		Currency:   cfg.Currency,
		Provider:   provider,
		Status:     SessionStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if snap.Coupon != nil {
		session.CouponCode = snap.Coupon.Code
	}
	session.ShippingAddress = addr
	return session
}

// SessionCache is the storage surface sessions live in
type SessionCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}

// SessionStore persists sessions in Redis under a TTL, so stale checkout
// attempts age out on their own
type SessionStore struct {
	cache SessionCache
	ttl   time.Duration
}

// NewSessionStore creates a session store
func NewSessionStore(cache SessionCache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: cache, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("checkout:session:%s", id)
}

// Create stores a new session
func (ss *SessionStore) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = "cs_" + uuid.New().String()
	}
	if session.Status == "" {
		session.Status = SessionStatusPending
	}
	if err := ss.cache.SetJSON(ctx, sessionKey(session.ID), session, ss.ttl); err != nil {
		return fmt.Errorf("failed to store payment session: %w", err)
	}
	return nil
}

// Get fetches a session by ID
func (ss *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := ss.cache.GetJSON(ctx, sessionKey(id), &session)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}
	return &session, nil
}

// MarkCompleted advances a session to the completed state
func (ss *SessionStore) MarkCompleted(ctx context.Context, id string) (*Session, error) {
	return ss.setStatus(ctx, id, SessionStatusCompleted)
}

// MarkFailed records a failed payment attempt
func (ss *SessionStore) MarkFailed(ctx context.Context, id string) (*Session, error) {
	return ss.setStatus(ctx, id, SessionStatusFailed)
}

func (ss *SessionStore) setStatus(ctx context.Context, id string, status SessionStatus) (*Session, error) {
	session, err := ss.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Status = status
	if status == SessionStatusCompleted {
		now := time.Now().UTC()
		session.CompletedAt = &now
	}
	if err := ss.cache.SetJSON(ctx, sessionKey(id), session, ss.ttl); err != nil {
		return nil, fmt.Errorf("failed to update payment session: %w", err)
	}
	return session, nil
}
