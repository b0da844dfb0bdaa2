// internal/domain/order/entity.go
package order

import (
	"fmt"
	"time"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// Order is the aggregate materialized from a completed payment session.
// SourceSessionID is unique across all orders; that constraint, not the
// pre-insert existence check, is what guarantees at most one order per
// session.
type Order struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	OrderNumber     string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	SourceSessionID string `gorm:"uniqueIndex;not null;size:64" json:"source_session_id"`

	// Buyer identity: nullable user for guest orders
	UserID     *uint  `gorm:"index" json:"user_id,omitempty"`
	GuestToken string `gorm:"index;size:64" json:"guest_token,omitempty"`
	Email      string `gorm:"size:255" json:"email"`

	Status OrderStatus `gorm:"not null;default:'pending'" json:"status"`

	// Amounts in cents
	SubtotalAmount int64  `gorm:"not null" json:"subtotal_amount"`
	TaxAmount      int64  `gorm:"default:0" json:"tax_amount"`
	ShippingAmount int64  `gorm:"default:0" json:"shipping_amount"`
	DiscountAmount int64  `gorm:"default:0" json:"discount_amount"`
	TotalAmount    int64  `gorm:"not null" json:"total_amount"`
	Currency       string `gorm:"size:3;default:'USD'" json:"currency"`

	CouponCode string `gorm:"size:50" json:"coupon_code,omitempty"`

	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`

	// Timestamps
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	LineID      string    `gorm:"not null;size:128" json:"line_id"`
	ProductID   string    `gorm:"not null;size:64;index" json:"product_id"`
	VariationID string    `gorm:"size:64" json:"variation_id,omitempty"`
	Title       string    `gorm:"not null;size:255" json:"title"`
	SizeName    string    `gorm:"size:50" json:"size_name,omitempty"`
	FrameName   string    `gorm:"size:50" json:"frame_name,omitempty"`
	ImageRef    string    `gorm:"size:512" json:"image_ref,omitempty"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`   // Price per unit in cents
	Quantity    int       `gorm:"not null" json:"quantity"`
	TotalPrice  int64     `gorm:"not null" json:"total_price"` // Quantity * UnitPrice
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// Address represents the shipping address (embedded in Order)
type Address struct {
	FirstName    string `gorm:"size:100" json:"first_name"`
	LastName     string `gorm:"size:100" json:"last_name"`
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	City         string `gorm:"size:100" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`
	Country      string `gorm:"size:2" json:"country"`
	Phone        string `gorm:"size:20" json:"phone"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// GenerateOrderNumber generates a unique order number
func (o *Order) GenerateOrderNumber() string {
	// Format: ORD-YYYYMMDD-XXXXX
	return fmt.Sprintf("ORD-%s-%05d", time.Now().Format("20060102"), o.ID)
}

// GetFormattedTotal returns total amount as float
func (o *Order) GetFormattedTotal() float64 {
	return float64(o.TotalAmount) / 100
}

// IsTerminal reports whether the order reached a final status
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRefunded
}

// CanBeCancelled checks if order can be cancelled. Any order that has not
// reached a terminal status can be, even one already in transit.
func (o *Order) CanBeCancelled() bool {
	return !o.IsTerminal()
}

// AddStatusHistory adds a new status change to history
func (o *Order) AddStatusHistory(status OrderStatus, comment string, createdBy uint) {
	history := OrderStatusHistory{
		OrderID:   o.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	o.StatusHistory = append(o.StatusHistory, history)
}
