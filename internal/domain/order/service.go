// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/payment"
)

// Terminal materialization errors. Retrying against the same session cannot
// succeed, so callers surface these to the user instead of retrying.
var (
	ErrSessionNotCompleted = errors.New("payment session is not completed")
	ErrEmptySession        = errors.New("payment session has no items")
	ErrOrderNotFound       = errors.New("order not found")
)

// SessionReader loads payment sessions for materialization
type SessionReader interface {
	Get(ctx context.Context, id string) (*payment.Session, error)
}

// CouponCounter increments coupon usage inside the materialization
// transaction
type CouponCounter interface {
	IncrementUsage(tx *gorm.DB, code string) error
}

// CheckoutTracker closes the checkout funnel on the cart tracking record
type CheckoutTracker interface {
	MarkCheckoutCompleted(ctx context.Context, id cart.Identity) error
}

// ConfirmationMailer sends the order confirmation email
type ConfirmationMailer interface {
	SendOrderConfirmation(ctx context.Context, o *Order) error
}

// Service handles order business logic
type Service struct {
	db       *gorm.DB
	sessions SessionReader
	coupons  CouponCounter
	tracker  CheckoutTracker
	mailer   ConfirmationMailer
	logger   *logrus.Logger
}

// NewService creates a new order service. tracker and mailer are optional;
// materialization degrades to order creation alone when they are nil.
func NewService(db *gorm.DB, sessions SessionReader, coupons CouponCounter, tracker CheckoutTracker, mailer ConfirmationMailer, logger *logrus.Logger) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		coupons:  coupons,
		tracker:  tracker,
		mailer:   mailer,
		logger:   logger,
	}
}

// MaterializeFromSession turns one completed payment session into exactly one
// order, no matter how many times or how concurrently it is called. The
// existence check is an optimization; the unique index on source_session_id
// is the invariant enforcer, and losing that race resolves by re-fetching
// the winner's order.
func (s *Service) MaterializeFromSession(ctx context.Context, sessionID string) (*Order, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	// Already materialized: return the existing order. This runs before the
	// session lookup so repeat calls keep working after the session's TTL
	// expires in Redis.
	if existing, err := s.findBySession(ctx, sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsCompleted() {
		return nil, ErrSessionNotCompleted
	}
	if len(session.Items) == 0 {
		return nil, ErrEmptySession
	}

	order, err := s.createFromSession(ctx, session)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a creation race; the winner's order is the order.
			return s.findBySession(ctx, sessionID)
		}
		return nil, err
	}

	s.afterMaterialize(ctx, session, order)
	return order, nil
}

func (s *Service) createFromSession(ctx context.Context, session *payment.Session) (*Order, error) {
	order := &Order{
		SourceSessionID: session.ID,
		UserID:          session.UserID,
		GuestToken:      session.GuestToken,
		Email:           session.GuestEmail,
		Status:          OrderStatusConfirmed, // payment already completed
		SubtotalAmount:  session.Subtotal,
		TaxAmount:       session.Tax,
		ShippingAmount:  session.Shipping,
		DiscountAmount:  session.Discount,
		TotalAmount:     session.Total,
		Currency:        session.Currency,
		CouponCode:      session.CouponCode,
		ShippingAddress: Address{
			FirstName:    session.ShippingAddress.FirstName,
			LastName:     session.ShippingAddress.LastName,
			AddressLine1: session.ShippingAddress.AddressLine1,
			AddressLine2: session.ShippingAddress.AddressLine2,
			City:         session.ShippingAddress.City,
			State:        session.ShippingAddress.State,
			PostalCode:   session.ShippingAddress.PostalCode,
			Country:      session.ShippingAddress.Country,
			Phone:        session.ShippingAddress.Phone,
		},
	}
	for _, item := range session.Items {
		order.Items = append(order.Items, OrderItem{
			LineID:      item.LineID,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Title:       item.Title,
			SizeName:    item.SizeName,
			FrameName:   item.FrameName,
			ImageRef:    item.ImageRef,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.UnitPrice * int64(item.Quantity),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Items and the initial status history ride along via associations.
		order.AddStatusHistory(OrderStatusConfirmed, "Order created from completed payment session", 0)
		order.OrderNumber = fmt.Sprintf("TMP-%s", session.ID) // placeholder until the ID exists
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		order.OrderNumber = order.GenerateOrderNumber()
		if err := tx.Model(&Order{}).Where("id = ?", order.ID).
			UpdateColumn("order_number", order.OrderNumber).Error; err != nil {
			return fmt.Errorf("failed to assign order number: %w", err)
		}

		if order.CouponCode != "" && s.coupons != nil {
			if err := s.coupons.IncrementUsage(tx, order.CouponCode); err != nil {
				return fmt.Errorf("failed to count coupon use: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// afterMaterialize runs the best-effort side effects of a fresh order:
// closing the checkout funnel and sending the confirmation email. Failures
// are logged, never surfaced, and never undo the order.
func (s *Service) afterMaterialize(ctx context.Context, session *payment.Session, order *Order) {
	if s.tracker != nil {
		id := session.Identity()
		if err := id.Validate(); err == nil {
			if err := s.tracker.MarkCheckoutCompleted(ctx, id); err != nil {
				s.logger.WithFields(logrus.Fields{
					"order_id": order.ID,
				}).WithError(err).Warn("Failed to mark checkout completed")
			}
		}
	}

	if s.mailer != nil && order.Email != "" {
		if err := s.mailer.SendOrderConfirmation(ctx, order); err != nil {
			s.logger.WithFields(logrus.Fields{
				"order_id": order.ID,
			}).WithError(err).Warn("Failed to send order confirmation email")
		}
	}
}

func (s *Service) findBySession(ctx context.Context, sessionID string) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("source_session_id = ?", sessionID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to look up order by session: %w", err)
	}
	return &order, nil
}

// GetOrderBySession looks up the order materialized from a session. When a
// user ID is supplied the order must belong to that user.
func (s *Service) GetOrderBySession(ctx context.Context, sessionID string, userID *uint) (*Order, error) {
	order, err := s.findBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != nil && (order.UserID == nil || *order.UserID != *userID) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetOrder fetches an order by ID
func (s *Service) GetOrder(ctx context.Context, id uint) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Preload("Items").Preload("StatusHistory").
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// GetGuestOrder looks up a guest order by number and email, the only
// credentials a guest holds
func (s *Service) GetGuestOrder(ctx context.Context, orderNumber, email string) (*Order, error) {
	if orderNumber == "" || email == "" {
		return nil, errors.New("order number and email are required")
	}

	var order Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("order_number = ? AND email = ? AND user_id IS NULL", orderNumber, email).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get guest order: %w", err)
	}
	return &order, nil
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// GetUserOrders retrieves orders for a specific user, newest first
func (s *Service) GetUserOrders(ctx context.Context, userID uint, page, limit int) (*OrderListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Order{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// ListOrders retrieves all orders, newest first, optionally filtered by
// status. Admin surface.
func (s *Service) ListOrders(ctx context.Context, status OrderStatus, page, limit int) (*OrderListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&Order{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// AttachGuestOrdersToUser re-keys a guest's past orders to the user after
// sign-in, so order history follows the account
func (s *Service) AttachGuestOrdersToUser(ctx context.Context, guestToken string, userID uint) (int64, error) {
	if guestToken == "" {
		return 0, errors.New("guest token is required")
	}

	result := s.db.WithContext(ctx).Model(&Order{}).
		Where("guest_token = ? AND user_id IS NULL", guestToken).
		Updates(map[string]interface{}{
			"user_id":     userID,
			"guest_token": "",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to attach guest orders: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateOrderStatus advances an order through the status machine
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uint, status OrderStatus, comment string, updatedBy uint) error {
	var order Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to get order: %w", err)
	}

	if !isValidStatusTransition(order.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", order.Status, status)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status": status,
	}
	switch status {
	case OrderStatusProcessing:
		updates["processed_at"] = now
	case OrderStatusShipped:
		updates["shipped_at"] = now
	case OrderStatusDelivered:
		updates["delivered_at"] = now
	case OrderStatusCancelled:
		updates["cancelled_at"] = now
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		history := OrderStatusHistory{
			OrderID:   orderID,
			Status:    status,
			Comment:   comment,
			CreatedBy: updatedBy,
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
}

// CancelOrder cancels an order that has not reached a terminal status
func (s *Service) CancelOrder(ctx context.Context, orderID uint, reason string, cancelledBy uint) error {
	var order Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to get order: %w", err)
	}

	if !order.CanBeCancelled() {
		return fmt.Errorf("order cannot be cancelled in current status: %s", order.Status)
	}

	return s.UpdateOrderStatus(ctx, orderID, OrderStatusCancelled, fmt.Sprintf("Order cancelled: %s", reason), cancelledBy)
}

// isValidStatusTransition enforces the order lifecycle: the forward chain
// pending → confirmed → processing → shipped → out_for_delivery → delivered,
// with cancellation and refund available from any non-terminal status.
func isValidStatusTransition(from, to OrderStatus) bool {
	forward := map[OrderStatus][]OrderStatus{
		OrderStatusPending:        {OrderStatusConfirmed},
		OrderStatusConfirmed:      {OrderStatusProcessing},
		OrderStatusProcessing:     {OrderStatusShipped},
		OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered},
		OrderStatusOutForDelivery: {OrderStatusDelivered},
	}

	allowed, exists := forward[from]
	if !exists {
		// Delivered, cancelled, and refunded are terminal.
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusRefunded {
		return true
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
