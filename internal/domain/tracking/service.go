// internal/domain/tracking/service.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// ErrRecordNotFound indicates no tracking record exists for the identity
var ErrRecordNotFound = errors.New("cart tracking record not found")

// Track actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// TrackResult reports the outcome of an upsert
type TrackResult struct {
	ID     uint   `json:"id"`
	Action string `json:"action"`
}

// Service handles cart tracking business logic
type Service struct {
	db *gorm.DB
}

// NewService creates a new tracking service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func scopeIdentity(db *gorm.DB, id cart.Identity) *gorm.DB {
	if id.UserID != nil {
		return db.Where("user_id = ?", *id.UserID)
	}
	return db.Where("guest_token = ?", id.GuestToken)
}

// TrackCart upserts the identity's tracking record with the given snapshot.
// Last write wins; concurrent first writes for the same identity are resolved
// by the unique index, with the loser retrying as an update.
func (s *Service) TrackCart(ctx context.Context, id cart.Identity, snap cart.Snapshot) (*TrackResult, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	result, err := s.upsert(ctx, id, snap)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a create race; the row exists now, so the update path works.
		result, err = s.upsert(ctx, id, snap)
	}
	return result, err
}

func (s *Service) upsert(ctx context.Context, id cart.Identity, snap cart.Snapshot) (*TrackResult, error) {
	now := time.Now().UTC()

	var record CartTrackingRecord
	err := scopeIdentity(s.db.WithContext(ctx), id).First(&record).Error
	if err == nil {
		updates := map[string]interface{}{
			"snapshot":         SnapshotColumn{snap},
			"subtotal":         snap.Subtotal,
			"item_count":       snap.TotalQuantity(),
			"last_activity_at": now,
		}
		if id.Email != "" {
			updates["email"] = id.Email
		}
		if err := s.db.WithContext(ctx).Model(&record).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update cart tracking record: %w", err)
		}
		return &TrackResult{ID: record.ID, Action: ActionUpdated}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up cart tracking record: %w", err)
	}

	record = CartTrackingRecord{
		UserID:         id.UserID,
		Email:          id.Email,
		Snapshot:       SnapshotColumn{snap},
		Subtotal:       snap.Subtotal,
		ItemCount:      snap.TotalQuantity(),
		IsAnonymous:    id.IsGuest(),
		LastActivityAt: now,
	}
	if id.IsGuest() {
		token := id.GuestToken
		record.GuestToken = &token
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &TrackResult{ID: record.ID, Action: ActionCreated}, nil
}

// GetCart reads the identity's tracking record
func (s *Service) GetCart(ctx context.Context, id cart.Identity) (*CartTrackingRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	var record CartTrackingRecord
	err := scopeIdentity(s.db.WithContext(ctx), id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get cart tracking record: %w", err)
	}
	return &record, nil
}

// ConvertGuestToUser re-keys the guest's record to the user. When the user
// already has a record from a previous session the two carts are merged
// additively and the guest row is deleted, so the union of both survives.
func (s *Service) ConvertGuestToUser(ctx context.Context, guestToken string, userID uint) error {
	if guestToken == "" {
		return errors.New("guest token is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guest CartTrackingRecord
		err := tx.Where("guest_token = ?", guestToken).First(&guest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // nothing tracked for this guest
		}
		if err != nil {
			return fmt.Errorf("failed to load guest record: %w", err)
		}

		var existing CartTrackingRecord
		err = tx.Where("user_id = ?", userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No prior user record: re-key the guest row in place.
			updates := map[string]interface{}{
				"user_id":      userID,
				"guest_token":  nil,
				"is_anonymous": false,
			}
			if err := tx.Model(&guest).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to re-key guest record: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load user record: %w", err)
		}

		merged := MergeSnapshots(existing.Snapshot.Snapshot, guest.Snapshot.Snapshot)
		updates := map[string]interface{}{
			"snapshot":         SnapshotColumn{merged},
			"subtotal":         merged.Subtotal,
			"item_count":       merged.TotalQuantity(),
			"last_activity_at": time.Now().UTC(),
		}
		if existing.Email == "" && guest.Email != "" {
			updates["email"] = guest.Email
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to merge guest cart into user record: %w", err)
		}
		if err := tx.Delete(&guest).Error; err != nil {
			return fmt.Errorf("failed to remove guest record: %w", err)
		}
		return nil
	})
}

// MergeSnapshots combines a user's stored cart with the guest cart that is
// being converted. Quantities sum for identical lines and the guest's unit
// price wins, since the guest cart is the one most recently touched. Coupons
// are not merged; callers re-validate against the merged subtotal.
func MergeSnapshots(stored, incoming cart.Snapshot) cart.Snapshot {
	merged := make([]cart.LineItem, 0, len(stored.Lines)+len(incoming.Lines))
	index := make(map[string]int, len(stored.Lines))
	for _, line := range stored.Lines {
		index[line.LineID] = len(merged)
		merged = append(merged, line)
	}
	for _, line := range incoming.Lines {
		if i, ok := index[line.LineID]; ok {
			merged[i].Quantity += line.Quantity
			merged[i].UnitPrice = line.UnitPrice
			continue
		}
		merged = append(merged, line)
	}
	return cart.Snapshot{
		Lines:     merged,
		Subtotal:  cart.SubtotalOf(merged),
		UpdatedAt: time.Now().UTC(),
	}
}

// IncrementMarketingEmailCount bumps the recovery-email counter without
// touching last_activity_at, so sending a recovery email does not itself
// register as cart activity.
func (s *Service) IncrementMarketingEmailCount(ctx context.Context, id cart.Identity) (int, error) {
	if err := id.Validate(); err != nil {
		return 0, fmt.Errorf("invalid identity: %w", err)
	}

	now := time.Now().UTC()
	result := scopeIdentity(s.db.WithContext(ctx).Model(&CartTrackingRecord{}), id).
		UpdateColumns(map[string]interface{}{
			"marketing_emails_sent":   gorm.Expr("marketing_emails_sent + ?", 1),
			"last_marketing_email_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to increment marketing email count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrRecordNotFound
	}

	var record CartTrackingRecord
	if err := scopeIdentity(s.db.WithContext(ctx), id).First(&record).Error; err != nil {
		return 0, fmt.Errorf("failed to re-read cart tracking record: %w", err)
	}
	return record.MarketingEmailsSent, nil
}

// MarkCheckoutStarted records that the identity entered checkout
func (s *Service) MarkCheckoutStarted(ctx context.Context, id cart.Identity) error {
	return s.markCheckout(ctx, id, "checkout_started_at", true)
}

// MarkCheckoutCompleted records that the identity's cart became an order.
// Completed carts are excluded from abandoned-cart recovery.
func (s *Service) MarkCheckoutCompleted(ctx context.Context, id cart.Identity) error {
	return s.markCheckout(ctx, id, "checkout_completed_at", false)
}

func (s *Service) markCheckout(ctx context.Context, id cart.Identity, column string, isActivity bool) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{column: now}
	if isActivity {
		updates["last_activity_at"] = now
	}
	result := scopeIdentity(s.db.WithContext(ctx).Model(&CartTrackingRecord{}), id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListAbandoned returns carts idle since before the cutoff that still have
// items, a reachable email, no completed checkout, and headroom under the
// recovery-email cap.
func (s *Service) ListAbandoned(ctx context.Context, cutoff time.Time, emailCap int) ([]CartTrackingRecord, error) {
	var records []CartTrackingRecord
	err := s.db.WithContext(ctx).
		Where("last_activity_at < ?", cutoff).
		Where("checkout_completed_at IS NULL").
		Where("item_count > 0").
		Where("email <> ''").
		Where("marketing_emails_sent < ?", emailCap).
		Order("last_activity_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned carts: %w", err)
	}
	return records, nil
}
