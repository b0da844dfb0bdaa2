// internal/domain/coupon/entity.go
package coupon

import (
	"time"

	"gorm.io/gorm"
)

// Type represents how a coupon's value is interpreted
type Type string

const (
	TypePercentage  Type = "percentage"   // Value is percentage points off the subtotal
	TypeFixedAmount Type = "fixed_amount" // Value is a flat amount in cents
)

// Coupon represents a discount code and its eligibility rules
type Coupon struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description string `gorm:"size:255" json:"description"`
	Type        Type   `gorm:"not null;size:20" json:"type"`
	Value       int64  `gorm:"not null" json:"value"`

	// Eligibility rules
	MinPurchaseAmount int64      `gorm:"default:0" json:"min_purchase_amount"` // In cents
	MaxDiscountAmount int64      `gorm:"default:0" json:"max_discount_amount"` // Cap for percentage coupons, 0 = uncapped
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	MaxUses           int        `gorm:"default:0" json:"max_uses"` // 0 = unlimited
	CurrentUses       int        `gorm:"default:0" json:"current_uses"`
	// No default tag, it would keep an explicitly inactive coupon from
	// persisting as false on create.
	IsActive          bool       `gorm:"not null" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Coupon) TableName() string { return "coupons" }

// IsWithinWindow checks the coupon's active time window
func (c *Coupon) IsWithinWindow(now time.Time) bool {
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// HasUsesRemaining checks the usage cap
func (c *Coupon) HasUsesRemaining() bool {
	return c.MaxUses == 0 || c.CurrentUses < c.MaxUses
}
