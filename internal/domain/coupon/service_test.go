package coupon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/storefront-backend/internal/domain/cart"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Coupon{}))
	return db
}

func seedCoupon(t *testing.T, db *gorm.DB, c Coupon) {
	t.Helper()
	require.NoError(t, db.Create(&c).Error)
}

func TestValidateUnknownCode(t *testing.T) {
	svc := NewService(setupDB(t))

	result := svc.Validate(context.Background(), "NOPE", 10000, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrInvalidCode, result.ErrorCode)
}

func TestValidateInactiveCodeIsInvalid(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "OLD", Type: TypePercentage, Value: 10, IsActive: false})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "OLD", 10000, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrInvalidCode, result.ErrorCode)
}

func TestValidateExpired(t *testing.T) {
	db := setupDB(t)
	expired := time.Now().UTC().Add(-time.Hour)
	seedCoupon(t, db, Coupon{Code: "LATE", Type: TypePercentage, Value: 10, IsActive: true, ExpiresAt: &expired})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "LATE", 10000, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrExpired, result.ErrorCode)
}

func TestValidateNotYetActive(t *testing.T) {
	db := setupDB(t)
	starts := time.Now().UTC().Add(time.Hour)
	seedCoupon(t, db, Coupon{Code: "SOON", Type: TypePercentage, Value: 10, IsActive: true, StartsAt: &starts})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "SOON", 10000, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrExpired, result.ErrorCode)
}

func TestValidateBelowMinPurchase(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "BIG", Type: TypePercentage, Value: 10, IsActive: true, MinPurchaseAmount: 5000})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "BIG", 4999, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrBelowMinPurchase, result.ErrorCode)
}

func TestValidateUsageCapReached(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "CAPPED", Type: TypePercentage, Value: 10, IsActive: true, MaxUses: 3, CurrentUses: 3})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "CAPPED", 10000, true)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrUsageCapReached, result.ErrorCode)
}

func TestValidateEmptyCart(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "SAVE10", Type: TypePercentage, Value: 10, IsActive: true})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "SAVE10", 0, false)

	assert.False(t, result.IsValid)
	assert.Equal(t, cart.CouponErrEmptyCart, result.ErrorCode)
}

func TestValidatePercentageWithCap(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "SAVE20", Type: TypePercentage, Value: 20, IsActive: true, MaxDiscountAmount: 1500})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "SAVE20", 10000, true)

	require.True(t, result.IsValid)
	require.NotNil(t, result.Coupon)
	assert.Equal(t, int64(1500), result.DiscountAmount)
}

func TestValidateFixedAmountClampedToSubtotal(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "FLAT50", Type: TypeFixedAmount, Value: 5000, IsActive: true})
	svc := NewService(db)

	result := svc.Validate(context.Background(), "FLAT50", 3000, true)

	require.True(t, result.IsValid)
	assert.Equal(t, int64(3000), result.DiscountAmount)
}

func TestIncrementUsage(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "SAVE10", Type: TypePercentage, Value: 10, IsActive: true})
	svc := NewService(db)

	require.NoError(t, svc.IncrementUsage(db, "SAVE10"))
	require.NoError(t, svc.IncrementUsage(db, "SAVE10"))

	c, err := svc.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 2, c.CurrentUses)
}

func TestIncrementUsageUnknownCode(t *testing.T) {
	svc := NewService(setupDB(t))

	err := svc.IncrementUsage(svc.db, "NOPE")

	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)

	require.NoError(t, svc.Create(context.Background(), &Coupon{Code: "SAVE10", Type: TypePercentage, Value: 10, IsActive: true}))
	err := svc.Create(context.Background(), &Coupon{Code: "SAVE10", Type: TypePercentage, Value: 15, IsActive: true})

	assert.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(setupDB(t))
	ctx := context.Background()

	assert.Error(t, svc.Create(ctx, &Coupon{Type: TypePercentage, Value: 10}))
	assert.Error(t, svc.Create(ctx, &Coupon{Code: "X", Type: "bogus", Value: 10}))
	assert.Error(t, svc.Create(ctx, &Coupon{Code: "X", Type: TypePercentage, Value: 0}))
	assert.Error(t, svc.Create(ctx, &Coupon{Code: "X", Type: TypePercentage, Value: 120}))
}

func TestDeactivate(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "SAVE10", Type: TypePercentage, Value: 10, IsActive: true})
	svc := NewService(db)

	require.NoError(t, svc.Deactivate(context.Background(), "SAVE10"))

	result := svc.Validate(context.Background(), "SAVE10", 10000, true)
	assert.Equal(t, cart.CouponErrInvalidCode, result.ErrorCode)
}

func TestValidatorAdapterRejection(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "BIG", Type: TypePercentage, Value: 10, IsActive: true, MinPurchaseAmount: 5000})
	validator := NewValidator(NewService(db))

	applied, err := validator.ValidateCoupon(context.Background(), "BIG", 1000, true)

	require.Error(t, err)
	assert.Nil(t, applied)
	rejected, ok := cart.AsCouponRejected(err)
	require.True(t, ok)
	assert.Equal(t, cart.CouponErrBelowMinPurchase, rejected.Code)
}

func TestValidatorAdapterAcceptance(t *testing.T) {
	db := setupDB(t)
	seedCoupon(t, db, Coupon{Code: "SAVE10", Type: TypePercentage, Value: 10, IsActive: true})
	validator := NewValidator(NewService(db))

	applied, err := validator.ValidateCoupon(context.Background(), "SAVE10", 10000, true)

	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, cart.CouponTypePercentage, applied.Type)
	assert.Equal(t, int64(1000), applied.DiscountFor(10000))
}
