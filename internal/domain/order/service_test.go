package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/payment"
)

type fakeSessions struct {
	sessions map[string]*payment.Session
	onGet    func()
}

func (f *fakeSessions) Get(_ context.Context, id string) (*payment.Session, error) {
	if f.onGet != nil {
		f.onGet()
	}
	session, ok := f.sessions[id]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return session, nil
}

type fakeTracker struct {
	completed []cart.Identity
	err       error
}

func (f *fakeTracker) MarkCheckoutCompleted(_ context.Context, id cart.Identity) error {
	if f.err != nil {
		return f.err
	}
	f.completed = append(f.completed, id)
	return nil
}

type fakeMailer struct {
	sent []uint
	err  error
}

func (f *fakeMailer) SendOrderConfirmation(_ context.Context, o *Order) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, o.ID)
	return nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Order{}, &OrderItem{}, &OrderStatusHistory{}, &coupon.Coupon{}))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func completedSession(id string) *payment.Session {
	session := &payment.Session{
		ID:         id,
		GuestToken: "guest-1",
		GuestEmail: "shopper@example.com",
		Items: []cart.LineItem{
			{LineID: "A", ProductID: "pA", Title: "City Print", UnitPrice: 7500, Quantity: 2},
		},
		Subtotal: 15000,
		Tax:      1350,
		Shipping: 0,
		Total:    16350,
		Currency: "USD",
		Status:   payment.SessionStatusCompleted,
		ShippingAddress: payment.Address{
			FirstName:    "Jamie",
			LastName:     "Rivera",
			AddressLine1: "12 Pine St",
			City:         "Portland",
			State:        "OR",
			PostalCode:   "97201",
			Country:      "US",
		},
	}
	return session
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	sessions *fakeSessions
	coupons  *coupon.Service
	tracker  *fakeTracker
	mailer   *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)
	sessions := &fakeSessions{sessions: map[string]*payment.Session{}}
	coupons := coupon.NewService(db)
	tracker := &fakeTracker{}
	mailer := &fakeMailer{}
	svc := NewService(db, sessions, coupons, tracker, mailer, quietLogger())
	return &fixture{db: db, svc: svc, sessions: sessions, coupons: coupons, tracker: tracker, mailer: mailer}
}

func TestMaterializeHappyPath(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	order, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", order.SourceSessionID)
	assert.Equal(t, OrderStatusConfirmed, order.Status)
	assert.Equal(t, int64(15000), order.SubtotalAmount)
	assert.Equal(t, int64(1350), order.TaxAmount)
	assert.Equal(t, int64(0), order.ShippingAmount)
	assert.Equal(t, int64(16350), order.TotalAmount)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(15000), order.Items[0].TotalPrice)
	assert.Equal(t, "Portland", order.ShippingAddress.City)

	// Side effects ran once.
	require.Len(t, f.tracker.completed, 1)
	assert.Equal(t, "guest-1", f.tracker.completed[0].GuestToken)
	assert.Equal(t, []uint{order.ID}, f.mailer.sent)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")
	ctx := context.Background()

	first, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)
	second, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&Order{}).Where("source_session_id = ?", "cs_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Duplicate side effects are not repeated either.
	assert.Len(t, f.mailer.sent, 1)
}

func TestMaterializeAfterSessionExpires(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")
	ctx := context.Background()

	first, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	// The Redis session aged out; the order must still be returned.
	delete(f.sessions.sessions, "cs_1")

	second, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
}

func TestMaterializeLosesCreationRace(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	// Another materialization commits between the pre-insert check and the
	// create. The session reader hook is the window after the check.
	winner := &Order{
		OrderNumber:     "ORD-20260901-00042",
		SourceSessionID: "cs_1",
		Email:           "shopper@example.com",
		Status:          OrderStatusConfirmed,
		SubtotalAmount:  15000,
		TotalAmount:     16350,
	}
	f.sessions.onGet = func() {
		require.NoError(t, f.db.Create(winner).Error)
	}

	got, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)

	var count int64
	require.NoError(t, f.db.Model(&Order{}).Where("source_session_id = ?", "cs_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// The loser runs no side effects for an order it did not create.
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.tracker.completed)
}

func TestMaterializeUniqueConstraintBacksTheCheck(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	_, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)

	// A direct insert for the same session must be refused by storage, not
	// just by the pre-insert check.
	dup := &Order{
		OrderNumber:     "ORD-ELSEWHERE-1",
		SourceSessionID: "cs_1",
		Email:           "other@example.com",
		SubtotalAmount:  100,
		TotalAmount:     100,
	}
	err = f.db.Create(dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestMaterializeRejectsInvalidSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MaterializeFromSession(ctx, "cs_missing")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)

	pending := completedSession("cs_pending")
	pending.Status = payment.SessionStatusPending
	f.sessions.sessions["cs_pending"] = pending
	_, err = f.svc.MaterializeFromSession(ctx, "cs_pending")
	assert.ErrorIs(t, err, ErrSessionNotCompleted)

	empty := completedSession("cs_empty")
	empty.Items = nil
	f.sessions.sessions["cs_empty"] = empty
	_, err = f.svc.MaterializeFromSession(ctx, "cs_empty")
	assert.ErrorIs(t, err, ErrEmptySession)

	var count int64
	require.NoError(t, f.db.Model(&Order{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestMaterializeCountsCouponUseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		Code: "SAVE10", Type: coupon.TypePercentage, Value: 10, IsActive: true,
	}))

	session := completedSession("cs_1")
	session.CouponCode = "SAVE10"
	session.Discount = 1500
	f.sessions.sessions["cs_1"] = session

	_, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)
	_, err = f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	c, err := f.coupons.GetByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentUses)
}

func TestMaterializeSideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.tracker.err = errors.New("tracking down")
	f.mailer.err = errors.New("smtp down")
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	order, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
}

func TestGetOrderBySessionOwnership(t *testing.T) {
	f := newFixture(t)
	userID := uint(7)
	session := completedSession("cs_1")
	session.UserID = &userID
	session.GuestToken = ""
	f.sessions.sessions["cs_1"] = session

	created, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)

	found, err := f.svc.GetOrderBySession(context.Background(), "cs_1", &userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	other := uint(8)
	_, err = f.svc.GetOrderBySession(context.Background(), "cs_1", &other)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.GetOrderBySession(context.Background(), "cs_unknown", nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetGuestOrder(t *testing.T) {
	f := newFixture(t)
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(context.Background(), "cs_1")
	require.NoError(t, err)

	found, err := f.svc.GetGuestOrder(context.Background(), created.OrderNumber, "shopper@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = f.svc.GetGuestOrder(context.Background(), created.OrderNumber, "wrong@example.com")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetUserOrdersPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uint(7)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("cs_%d", i)
		session := completedSession(id)
		session.UserID = &userID
		session.GuestToken = ""
		f.sessions.sessions[id] = session
		_, err := f.svc.MaterializeFromSession(ctx, id)
		require.NoError(t, err)
	}

	page, err := f.svc.GetUserOrders(ctx, userID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var cancelled *Order
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("cs_%d", i)
		f.sessions.sessions[id] = completedSession(id)
		created, err := f.svc.MaterializeFromSession(ctx, id)
		require.NoError(t, err)
		if i == 0 {
			cancelled = created
		}
	}
	require.NoError(t, f.svc.CancelOrder(ctx, cancelled.ID, "customer request", 1))

	all, err := f.svc.ListOrders(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Pagination.Total)

	onlyCancelled, err := f.svc.ListOrders(ctx, OrderStatusCancelled, 1, 10)
	require.NoError(t, err)
	require.Len(t, onlyCancelled.Orders, 1)
	assert.Equal(t, cancelled.ID, onlyCancelled.Orders[0].ID)
}

func TestAttachGuestOrdersToUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	moved, err := f.svc.AttachGuestOrdersToUser(ctx, "guest-1", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	order, err := f.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, order.UserID)
	assert.Equal(t, uint(7), *order.UserID)
	assert.Empty(t, order.GuestToken)
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	// Skipping straight to delivered is not a legal move.
	err = f.svc.UpdateOrderStatus(ctx, created.ID, OrderStatusDelivered, "", 1)
	assert.Error(t, err)

	for _, status := range []OrderStatus{
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
	} {
		require.NoError(t, f.svc.UpdateOrderStatus(ctx, created.ID, status, "", 1))
	}

	order, err := f.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDelivered, order.Status)
	assert.NotNil(t, order.ProcessedAt)
	assert.NotNil(t, order.ShippedAt)
	assert.NotNil(t, order.DeliveredAt)
	assert.GreaterOrEqual(t, len(order.StatusHistory), 5)
}

func TestCancelOrderIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelOrder(ctx, created.ID, "changed my mind", 0))

	order, err := f.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)

	// Cancelled is terminal.
	err = f.svc.UpdateOrderStatus(ctx, created.ID, OrderStatusProcessing, "", 1)
	assert.Error(t, err)
}

func TestCancelShippedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateOrderStatus(ctx, created.ID, OrderStatusProcessing, "", 1))
	require.NoError(t, f.svc.UpdateOrderStatus(ctx, created.ID, OrderStatusShipped, "", 1))

	// In transit is not terminal, so cancellation still goes through.
	require.NoError(t, f.svc.CancelOrder(ctx, created.ID, "lost package", 0))

	order, err := f.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, order.Status)
}

func TestCancelDeliveredOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.sessions["cs_1"] = completedSession("cs_1")

	created, err := f.svc.MaterializeFromSession(ctx, "cs_1")
	require.NoError(t, err)

	for _, status := range []OrderStatus{
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
	} {
		require.NoError(t, f.svc.UpdateOrderStatus(ctx, created.ID, status, "", 1))
	}

	err = f.svc.CancelOrder(ctx, created.ID, "too late", 0)
	assert.Error(t, err)

	// Refund from delivered is no longer open either.
	err = f.svc.UpdateOrderStatus(ctx, created.ID, OrderStatusRefunded, "", 1)
	assert.Error(t, err)
}
