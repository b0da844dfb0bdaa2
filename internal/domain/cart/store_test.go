package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	coupon *AppliedCoupon
	err    error
	calls  int
}

func (v *stubValidator) ValidateCoupon(_ context.Context, code string, subtotal int64, hasItems bool) (*AppliedCoupon, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.coupon, nil
}

func posterLine(productID string, price int64) LineItem {
	return LineItem{
		ProductID: productID,
		Title:     "Poster " + productID,
		UnitPrice: price,
		SizeName:  "A2",
		FrameName: "black",
	}
}

func TestAddItemMergesByLineID(t *testing.T) {
	store := NewStore(&stubValidator{})

	line := posterLine("p1", 2500)
	store.AddItem(line, 2)
	snap := store.AddItem(line, 3)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 5, snap.Lines[0].Quantity)
	assert.Equal(t, int64(12500), snap.Subtotal)
}

func TestAddItemDistinctOptionsAreDistinctLines(t *testing.T) {
	store := NewStore(&stubValidator{})

	a2 := posterLine("p1", 2500)
	a1 := posterLine("p1", 3500)
	a1.SizeName = "A1"

	store.AddItem(a2, 1)
	snap := store.AddItem(a1, 1)

	require.Len(t, snap.Lines, 2)
	assert.NotEqual(t, snap.Lines[0].LineID, snap.Lines[1].LineID)
}

func TestDecrementFloorRemovesLine(t *testing.T) {
	store := NewStore(&stubValidator{})

	line := posterLine("p1", 2500)
	store.AddItem(line, 2)

	snap := store.Decrement(DeriveLineID(line), 5)

	assert.Empty(t, snap.Lines)
	assert.Equal(t, int64(0), snap.Subtotal)
}

func TestDecrementPartial(t *testing.T) {
	store := NewStore(&stubValidator{})

	line := posterLine("p1", 2500)
	store.AddItem(line, 3)

	snap := store.Decrement(DeriveLineID(line), 1)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
}

func TestRemoveUnknownLineIsNoop(t *testing.T) {
	store := NewStore(&stubValidator{})
	store.AddItem(posterLine("p1", 2500), 1)

	snap := store.Remove("missing")

	assert.Len(t, snap.Lines, 1)
}

func TestApplyCouponRejectionLeavesCartUnchanged(t *testing.T) {
	validator := &stubValidator{err: &CouponRejectedError{Code: CouponErrBelowMinPurchase, Reason: "minimum purchase is $50.00"}}
	store := NewStore(validator)
	store.AddItem(posterLine("p1", 2500), 1)

	snap, err := store.ApplyCoupon(context.Background(), "SAVE10")

	require.Error(t, err)
	rejected, ok := AsCouponRejected(err)
	require.True(t, ok)
	assert.Equal(t, CouponErrBelowMinPurchase, rejected.Code)
	assert.Nil(t, snap.Coupon)
	assert.Equal(t, int64(0), snap.Discount)
}

func TestApplyCouponPercentageDiscount(t *testing.T) {
	validator := &stubValidator{coupon: &AppliedCoupon{Code: "SAVE10", Type: CouponTypePercentage, Value: 10}}
	store := NewStore(validator)
	store.AddItem(posterLine("p1", 5000), 2)

	snap, err := store.ApplyCoupon(context.Background(), "SAVE10")

	require.NoError(t, err)
	require.NotNil(t, snap.Coupon)
	assert.Equal(t, int64(1000), snap.Discount)
}

func TestDiscountRecomputedOnMutation(t *testing.T) {
	validator := &stubValidator{coupon: &AppliedCoupon{Code: "SAVE10", Type: CouponTypePercentage, Value: 10}}
	store := NewStore(validator)
	line := posterLine("p1", 5000)
	store.AddItem(line, 2)

	_, err := store.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)

	snap := store.Decrement(DeriveLineID(line), 1)
	assert.Equal(t, int64(500), snap.Discount)
}

func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	validator := &stubValidator{coupon: &AppliedCoupon{Code: "FLAT50", Type: CouponTypeFixedAmount, Value: 5000}}
	store := NewStore(validator)
	store.AddItem(posterLine("p1", 1000), 1)

	snap, err := store.ApplyCoupon(context.Background(), "FLAT50")

	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.Discount)
	assert.LessOrEqual(t, snap.Discount, snap.Subtotal)
}

func TestRemoveCoupon(t *testing.T) {
	validator := &stubValidator{coupon: &AppliedCoupon{Code: "SAVE10", Type: CouponTypePercentage, Value: 10}}
	store := NewStore(validator)
	store.AddItem(posterLine("p1", 5000), 1)

	_, err := store.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)

	snap := store.RemoveCoupon()
	assert.Nil(t, snap.Coupon)
	assert.Equal(t, int64(0), snap.Discount)
}

func TestClearDropsLinesAndCoupon(t *testing.T) {
	validator := &stubValidator{coupon: &AppliedCoupon{Code: "SAVE10", Type: CouponTypePercentage, Value: 10}}
	store := NewStore(validator)
	store.AddItem(posterLine("p1", 5000), 1)
	_, err := store.ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)

	snap := store.Clear()

	assert.True(t, snap.IsEmpty())
	assert.Nil(t, snap.Coupon)
	assert.Equal(t, int64(0), snap.Discount)
}

func TestSubscribersSeeMutations(t *testing.T) {
	store := NewStore(&stubValidator{})

	var seen []Mutation
	store.Subscribe(func(m Mutation, _ Snapshot) {
		seen = append(seen, m)
	})

	line := posterLine("p1", 2500)
	store.AddItem(line, 1)
	store.Decrement(DeriveLineID(line), 1)
	store.ReplaceSnapshot(Snapshot{}, "restore")

	require.Len(t, seen, 3)
	assert.IsType(t, ItemAdded{}, seen[0])
	dec, ok := seen[1].(ItemDecremented)
	require.True(t, ok)
	assert.True(t, dec.Removed)
	assert.IsType(t, SnapshotReplaced{}, seen[2])
}

func TestReplaceSnapshotRecomputesTotals(t *testing.T) {
	store := NewStore(&stubValidator{})

	snap := store.ReplaceSnapshot(Snapshot{
		Lines:  []LineItem{{LineID: "l1", ProductID: "p1", UnitPrice: 2000, Quantity: 3}},
		Coupon: &AppliedCoupon{Code: "SAVE10", Type: CouponTypePercentage, Value: 10},
	}, "restore")

	assert.Equal(t, int64(6000), snap.Subtotal)
	assert.Equal(t, int64(600), snap.Discount)
}
