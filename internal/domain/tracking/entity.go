// internal/domain/tracking/entity.go
package tracking

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// SnapshotColumn stores a cart snapshot as a JSON document
type SnapshotColumn struct {
	cart.Snapshot
}

// Value implements driver.Valuer
func (s SnapshotColumn) Value() (driver.Value, error) {
	return json.Marshal(s.Snapshot)
}

// Scan implements sql.Scanner
func (s *SnapshotColumn) Scan(value interface{}) error {
	if value == nil {
		s.Snapshot = cart.Snapshot{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported snapshot column type %T", value)
	}
	return json.Unmarshal(data, &s.Snapshot)
}

// CartTrackingRecord is the durable server-side view of one identity's cart,
// plus the checkout-funnel and marketing metadata hanging off it. Exactly one
// of UserID or GuestToken is set; the nullable unique indexes enforce one
// record per identity.
type CartTrackingRecord struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	UserID     *uint   `gorm:"uniqueIndex" json:"user_id,omitempty"`
	GuestToken *string `gorm:"uniqueIndex;size:64" json:"guest_token,omitempty"`
	Email      string  `gorm:"size:255;index" json:"email,omitempty"`

	Snapshot  SnapshotColumn `gorm:"type:jsonb" json:"snapshot"`
	Subtotal  int64          `gorm:"not null;default:0" json:"subtotal"` // In cents
	ItemCount int            `gorm:"not null;default:0" json:"item_count"`

	// No default tag: GORM drops zero-valued fields from the insert when one
	// is present, which would turn an explicit false into true.
	IsAnonymous    bool      `gorm:"not null" json:"is_anonymous"`
	LastActivityAt time.Time `gorm:"not null;index" json:"last_activity_at"`

	// Checkout funnel
	CheckoutStartedAt   *time.Time `json:"checkout_started_at,omitempty"`
	CheckoutCompletedAt *time.Time `json:"checkout_completed_at,omitempty"`

	// Recovery marketing
	MarketingEmailsSent  int        `gorm:"not null;default:0" json:"marketing_emails_sent"`
	LastMarketingEmailAt *time.Time `json:"last_marketing_email_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides
func (CartTrackingRecord) TableName() string { return "cart_tracking_records" }

// Identity reconstructs the owning identity of the record
func (r *CartTrackingRecord) Identity() cart.Identity {
	id := cart.Identity{UserID: r.UserID, Email: r.Email}
	if r.GuestToken != nil {
		id.GuestToken = *r.GuestToken
	}
	return id
}

// HasCompletedCheckout reports whether this cart already turned into an order
func (r *CartTrackingRecord) HasCompletedCheckout() bool {
	return r.CheckoutCompletedAt != nil
}
