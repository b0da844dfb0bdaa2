// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// ErrCouponNotFound indicates the code does not exist
var ErrCouponNotFound = errors.New("coupon not found")

// ValidationResult is the outcome of a coupon eligibility check
type ValidationResult struct {
	IsValid        bool                `json:"is_valid"`
	Coupon         *cart.AppliedCoupon `json:"coupon,omitempty"`
	DiscountAmount int64               `json:"discount_amount,omitempty"`
	ErrorCode      string              `json:"error_code,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// Service handles coupon business logic
type Service struct {
	db *gorm.DB
}

// NewService creates a new coupon service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Validate checks a coupon code against its eligibility rules for the given
// cart subtotal. Rule order: the code must exist and be active, the current
// time must fall in its window, the subtotal must reach the minimum purchase,
// the usage cap must not be exhausted, and the cart must not be empty.
func (s *Service) Validate(ctx context.Context, code string, subtotal int64, hasItems bool) *ValidationResult {
	var c Coupon
	err := s.db.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rejected(cart.CouponErrInvalidCode, "coupon code is not valid")
		}
		return rejected(cart.CouponErrInvalidCode, "coupon lookup failed")
	}

	if !c.IsWithinWindow(time.Now().UTC()) {
		return rejected(cart.CouponErrExpired, "coupon is expired or not yet active")
	}

	if subtotal < c.MinPurchaseAmount {
		return rejected(cart.CouponErrBelowMinPurchase,
			fmt.Sprintf("minimum purchase of $%.2f required", float64(c.MinPurchaseAmount)/100))
	}

	if !c.HasUsesRemaining() {
		return rejected(cart.CouponErrUsageCapReached, "coupon usage limit reached")
	}

	if !hasItems {
		return rejected(cart.CouponErrEmptyCart, "cannot apply a coupon to an empty cart")
	}

	applied := &cart.AppliedCoupon{
		Code:        c.Code,
		Type:        string(c.Type),
		Value:       c.Value,
		MaxDiscount: c.MaxDiscountAmount,
	}
	return &ValidationResult{
		IsValid:        true,
		Coupon:         applied,
		DiscountAmount: applied.DiscountFor(subtotal),
	}
}

// IncrementUsage bumps a coupon's usage counter. It runs on the given
// handle so order materialization can include it in its transaction.
func (s *Service) IncrementUsage(tx *gorm.DB, code string) error {
	result := tx.Model(&Coupon{}).
		Where("code = ?", code).
		UpdateColumn("current_uses", gorm.Expr("current_uses + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// GetByCode fetches a coupon regardless of active state
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// Create adds a new coupon (admin)
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	if c.Code == "" {
		return errors.New("coupon code is required")
	}
	if c.Type != TypePercentage && c.Type != TypeFixedAmount {
		return fmt.Errorf("unknown coupon type: %s", c.Type)
	}
	if c.Value <= 0 {
		return errors.New("coupon value must be positive")
	}
	if c.Type == TypePercentage && c.Value > 100 {
		return errors.New("percentage coupon value cannot exceed 100")
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("coupon code %s already exists", c.Code)
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// List returns coupons ordered by creation time (admin)
func (s *Service) List(ctx context.Context, page, limit int) ([]Coupon, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Coupon{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	var coupons []Coupon
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&coupons).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, total, nil
}

// Deactivate disables a coupon without deleting it (admin)
func (s *Service) Deactivate(ctx context.Context, code string) error {
	result := s.db.WithContext(ctx).Model(&Coupon{}).
		Where("code = ?", code).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func rejected(code, message string) *ValidationResult {
	return &ValidationResult{
		IsValid:      false,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// Validator adapts the service to the cart store's validation interface.
type Validator struct {
	svc *Service
}

// NewValidator wraps a coupon service for use by the cart store
func NewValidator(svc *Service) *Validator {
	return &Validator{svc: svc}
}

// ValidateCoupon implements cart.CouponValidator
func (v *Validator) ValidateCoupon(ctx context.Context, code string, subtotal int64, hasItems bool) (*cart.AppliedCoupon, error) {
	result := v.svc.Validate(ctx, code, subtotal, hasItems)
	if !result.IsValid {
		return nil, &cart.CouponRejectedError{Code: result.ErrorCode, Reason: result.ErrorMessage}
	}
	return result.Coupon, nil
}
