package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(data, dest)
}

func checkoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		FreeShippingThreshold: 10000,
		StandardShippingCost:  999,
		TaxRate:               9.0,
		Currency:              "USD",
	}
}

func TestBuildSessionFreeShippingOverThreshold(t *testing.T) {
	snap := cart.Snapshot{
		Lines:    []cart.LineItem{{LineID: "A", ProductID: "pA", UnitPrice: 7500, Quantity: 2}},
		Subtotal: 15000,
	}

	session := BuildSession(snap, cart.Identity{GuestToken: "g-1", Email: "shopper@example.com"}, Address{City: "Portland"}, "stripe", checkoutConfig())

	assert.Equal(t, int64(15000), session.Subtotal)
	assert.Equal(t, int64(0), session.Shipping)
	assert.Equal(t, int64(1350), session.Tax)
	assert.Equal(t, int64(16350), session.Total)
	assert.Equal(t, SessionStatusPending, session.Status)
	assert.Contains(t, session.ID, "cs_")
}

func TestBuildSessionStandardShippingAndDiscount(t *testing.T) {
	snap := cart.Snapshot{
		Lines:    []cart.LineItem{{LineID: "A", ProductID: "pA", UnitPrice: 5000, Quantity: 1}},
		Subtotal: 5000,
		Discount: 500,
		Coupon:   &cart.AppliedCoupon{Code: "SAVE10", Type: cart.CouponTypePercentage, Value: 10},
	}

	session := BuildSession(snap, cart.Identity{GuestToken: "g-1"}, Address{}, "stripe", checkoutConfig())

	// Tax and the free-shipping threshold both apply to the discounted subtotal.
	assert.Equal(t, int64(999), session.Shipping)
	assert.Equal(t, int64(405), session.Tax)
	assert.Equal(t, int64(4500+405+999), session.Total)
	assert.Equal(t, "SAVE10", session.CouponCode)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore(newMemoryCache(), time.Hour)
	ctx := context.Background()

	session := &Session{
		Items:    []cart.LineItem{{LineID: "A", ProductID: "pA", UnitPrice: 1000, Quantity: 1}},
		Subtotal: 1000,
		Total:    1000,
	}
	require.NoError(t, store.Create(ctx, session))
	require.NotEmpty(t, session.ID)

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, SessionStatusPending, loaded.Status)
	assert.False(t, loaded.IsCompleted())
}

func TestSessionStoreGetMissing(t *testing.T) {
	store := NewSessionStore(newMemoryCache(), time.Hour)

	_, err := store.Get(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreMarkCompleted(t *testing.T) {
	store := NewSessionStore(newMemoryCache(), time.Hour)
	ctx := context.Background()

	session := &Session{Subtotal: 1000, Total: 1000}
	require.NoError(t, store.Create(ctx, session))

	completed, err := store.MarkCompleted(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, completed.IsCompleted())
	require.NotNil(t, completed.CompletedAt)

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsCompleted())
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.completed","session_id":"cs_1"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookSignature(secret, body, signature))
	assert.False(t, VerifyWebhookSignature(secret, body, "deadbeef"))
	assert.False(t, VerifyWebhookSignature(secret, []byte(`tampered`), signature))
	assert.False(t, VerifyWebhookSignature("", body, signature))
}
