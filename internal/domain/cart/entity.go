// internal/domain/cart/entity.go
package cart

import (
	"fmt"
	"time"
)

// LineItem represents a single cart line. Distinct size/frame combinations
// of the same product are distinct lines.
type LineItem struct {
	LineID      string `json:"line_id"`
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	Title       string `json:"title"`
	UnitPrice   int64  `json:"unit_price"` // Price in cents at time of adding
	Quantity    int    `json:"quantity"`
	SizeName    string `json:"size_name,omitempty"`
	FrameName   string `json:"frame_name,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
}

// DeriveLineID computes the line identity: the variation ID when present,
// otherwise the product ID combined with the selected options.
func DeriveLineID(item LineItem) string {
	if item.VariationID != "" {
		return item.VariationID
	}
	return fmt.Sprintf("%s|%s|%s", item.ProductID, item.SizeName, item.FrameName)
}

// Coupon rule types understood by the store.
const (
	CouponTypePercentage  = "percentage"
	CouponTypeFixedAmount = "fixed_amount"
)

// AppliedCoupon carries the server-validated discount rule so the store can
// recompute the discount as the cart changes without re-deriving eligibility.
type AppliedCoupon struct {
	Code        string `json:"code"`
	Type        string `json:"type"` // percentage or fixed_amount
	Value       int64  `json:"value"`
	MaxDiscount int64  `json:"max_discount,omitempty"`
}

// DiscountFor computes the discount this coupon yields for a subtotal,
// clamped to [0, subtotal].
func (c *AppliedCoupon) DiscountFor(subtotal int64) int64 {
	if c == nil || subtotal <= 0 {
		return 0
	}

	var discount int64
	if c.Type == CouponTypePercentage {
		discount = subtotal * c.Value / 100
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
	} else {
		discount = c.Value
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Snapshot is a point-in-time copy of the cart state.
type Snapshot struct {
	Lines     []LineItem     `json:"lines"`
	Coupon    *AppliedCoupon `json:"coupon,omitempty"`
	Discount  int64          `json:"discount"`
	Subtotal  int64          `json:"subtotal"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsEmpty reports whether the snapshot has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// TotalQuantity returns the sum of all line quantities.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, line := range s.Lines {
		total += line.Quantity
	}
	return total
}

// SubtotalOf computes the subtotal of a set of lines.
func SubtotalOf(lines []LineItem) int64 {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	return subtotal
}

// Mutation is the closed set of cart state changes observable by
// subscribers.
type Mutation interface {
	mutation()
}

// ItemAdded indicates a line was added or its quantity increased.
type ItemAdded struct {
	LineID   string
	Quantity int
}

// ItemDecremented indicates a line quantity decreased; Removed is true when
// the decrement dropped the line entirely.
type ItemDecremented struct {
	LineID   string
	Quantity int
	Removed  bool
}

// ItemRemoved indicates a line was removed outright.
type ItemRemoved struct {
	LineID string
}

// CartCleared indicates all lines were dropped.
type CartCleared struct{}

// CouponApplied indicates a coupon passed validation and was attached.
type CouponApplied struct {
	Code string
}

// CouponRemoved indicates the applied coupon was detached.
type CouponRemoved struct {
	Code string
}

// SnapshotReplaced indicates the whole cart state was swapped in from the
// outside (initial load, sign-in merge). Excluded from sync triggering so
// the sync middleware never feeds back into itself.
type SnapshotReplaced struct {
	Reason string
}

func (ItemAdded) mutation()        {}
func (ItemDecremented) mutation()  {}
func (ItemRemoved) mutation()      {}
func (CartCleared) mutation()      {}
func (CouponApplied) mutation()    {}
func (CouponRemoved) mutation()    {}
func (SnapshotReplaced) mutation() {}
