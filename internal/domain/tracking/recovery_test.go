package tracking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
)

type fakeMailer struct {
	sent    []string
	failFor map[string]error
}

func (m *fakeMailer) SendCartRecoveryEmail(_ context.Context, to string, _ cart.Snapshot) error {
	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, to)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func recoveryConfig() config.CartConfig {
	return config.CartConfig{
		AbandonedAfter:        4 * time.Hour,
		RecoveryEmailCap:      3,
		RecoverySweepInterval: time.Minute,
	}
}

func seedAbandoned(t *testing.T, db *gorm.DB, token, email string, idleFor time.Duration) {
	t.Helper()
	guestToken := token
	record := CartTrackingRecord{
		GuestToken:     &guestToken,
		Email:          email,
		Snapshot:       SnapshotColumn{snapshotWith(cart.LineItem{LineID: "A", ProductID: "pA", UnitPrice: 1000, Quantity: 2})},
		Subtotal:       2000,
		ItemCount:      2,
		IsAnonymous:    true,
		LastActivityAt: time.Now().UTC().Add(-idleFor),
	}
	require.NoError(t, db.Create(&record).Error)
}

func TestSweepSendsAndCounts(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)
	seedAbandoned(t, db, "g-1", "one@example.com", 6*time.Hour)
	seedAbandoned(t, db, "g-2", "two@example.com", time.Hour) // not abandoned yet

	mailer := &fakeMailer{}
	sweeper := NewRecoverySweeper(svc, mailer, recoveryConfig(), quietLogger())

	sweeper.Sweep(context.Background())

	assert.Equal(t, []string{"one@example.com"}, mailer.sent)

	record, err := svc.GetCart(context.Background(), cart.Identity{GuestToken: "g-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, record.MarketingEmailsSent)
	// The send itself must not look like cart activity, or the cart would
	// never qualify as abandoned again.
	assert.WithinDuration(t, time.Now().UTC().Add(-6*time.Hour), record.LastActivityAt, time.Minute)
}

func TestSweepRespectsEmailCap(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)
	seedAbandoned(t, db, "g-1", "one@example.com", 6*time.Hour)

	mailer := &fakeMailer{}
	sweeper := NewRecoverySweeper(svc, mailer, recoveryConfig(), quietLogger())

	for i := 0; i < 5; i++ {
		sweeper.Sweep(context.Background())
	}

	assert.Len(t, mailer.sent, 3)
}

func TestSweepSendFailureRetriesNextPass(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)
	seedAbandoned(t, db, "g-1", "one@example.com", 6*time.Hour)

	mailer := &fakeMailer{failFor: map[string]error{"one@example.com": errors.New("smtp down")}}
	sweeper := NewRecoverySweeper(svc, mailer, recoveryConfig(), quietLogger())

	sweeper.Sweep(context.Background())
	assert.Empty(t, mailer.sent)

	record, err := svc.GetCart(context.Background(), cart.Identity{GuestToken: "g-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, record.MarketingEmailsSent)

	mailer.failFor = nil
	sweeper.Sweep(context.Background())
	assert.Equal(t, []string{"one@example.com"}, mailer.sent)
}

// End-to-end sign-in through the gateway: the transition handler converts
// the guest record and merges carts against the real service.
func TestGatewaySignInFlow(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)
	gateway := NewGateway(svc)
	ctx := context.Background()

	userID := uint(7)
	_, err := svc.TrackCart(ctx, cart.Identity{UserID: &userID}, snapshotWith(
		cart.LineItem{LineID: "B", ProductID: "pB", UnitPrice: 2000, Quantity: 2},
	))
	require.NoError(t, err)

	store := cart.NewStore(nil)
	var handler *cart.TransitionHandler
	sm := cart.NewSyncMiddleware(store, gateway, func() cart.Identity { return handler.Identity() }, time.Hour, quietLogger())
	sm.Attach()
	handler = cart.NewTransitionHandler(store, sm, gateway, nil, "guest-9", quietLogger())
	defer sm.Stop()

	store.AddItem(cart.LineItem{LineID: "A", ProductID: "pA", UnitPrice: 1000, Quantity: 1}, 1)
	_, err = svc.TrackCart(ctx, cart.Identity{GuestToken: "guest-9"}, store.Snapshot())
	require.NoError(t, err)

	require.NoError(t, handler.HandleAuthChange(ctx, cart.AuthSignedIn, &userID, "user@example.com"))

	// Local store holds the union and the server record was re-synced to it.
	snap := store.Snapshot()
	assert.Len(t, snap.Lines, 2)

	record, err := svc.GetCart(ctx, cart.Identity{UserID: &userID})
	require.NoError(t, err)
	assert.Len(t, record.Snapshot.Lines, 2)
	assert.Equal(t, "user@example.com", record.Email)
}
