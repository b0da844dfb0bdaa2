// internal/pkg/email/adapters.go
package email

import (
	"context"
	"fmt"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

// OrderMailer adapts EmailService for order confirmation notifications.
type OrderMailer struct {
	service *EmailService
}

// NewOrderMailer creates an order mailer backed by the email service
func NewOrderMailer(service *EmailService) *OrderMailer {
	return &OrderMailer{service: service}
}

// SendOrderConfirmation sends the confirmation email for a materialized order
func (m *OrderMailer) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	if o.Email == "" {
		return fmt.Errorf("order %s has no email address", o.OrderNumber)
	}

	baseURL := m.service.config.External.Email.BaseURL
	data := OrderConfirmationData{
		OrderNumber:     o.OrderNumber,
		OrderDate:       o.CreatedAt.Format("January 2, 2006"),
		OrderTotal:      formatCents(o.TotalAmount, o.Currency),
		OrderURL:        fmt.Sprintf("%s/orders/%s", baseURL, o.OrderNumber),
		Items:           orderItemsFor(o),
		ShippingAddress: addressFor(o.ShippingAddress),
	}
	data.UserName = o.ShippingAddress.FirstName
	data.UserEmail = o.Email

	return m.service.SendOrderConfirmationEmail(ctx, data)
}

// RecoveryMailer adapts EmailService for abandoned cart recovery emails.
type RecoveryMailer struct {
	service *EmailService
}

// NewRecoveryMailer creates a recovery mailer backed by the email service
func NewRecoveryMailer(service *EmailService) *RecoveryMailer {
	return &RecoveryMailer{service: service}
}

// SendCartRecoveryEmail sends a recovery nudge for an abandoned cart
func (m *RecoveryMailer) SendCartRecoveryEmail(ctx context.Context, to string, snap cart.Snapshot) error {
	items := make([]OrderItem, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		items = append(items, OrderItem{
			Name:     line.Title,
			Variant:  variantLabel(line),
			Quantity: line.Quantity,
			Price:    formatCents(line.UnitPrice, ""),
			Total:    formatCents(line.UnitPrice*int64(line.Quantity), ""),
			ImageURL: line.ImageRef,
		})
	}

	data := CartRecoveryData{
		Items:     items,
		ItemCount: snap.TotalQuantity(),
		CartTotal: formatCents(snap.Subtotal-snap.Discount, ""),
	}
	data.UserEmail = to

	return m.service.SendCartRecoveryEmail(ctx, data)
}

func orderItemsFor(o *order.Order) []OrderItem {
	items := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItem{
			Name:     item.Title,
			Variant:  variantLabel(cart.LineItem{SizeName: item.SizeName, FrameName: item.FrameName}),
			Quantity: item.Quantity,
			Price:    formatCents(item.UnitPrice, o.Currency),
			Total:    formatCents(item.TotalPrice, o.Currency),
			ImageURL: item.ImageRef,
		})
	}
	return items
}

func addressFor(a order.Address) Address {
	return Address{
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Phone:        a.Phone,
	}
}

func variantLabel(line cart.LineItem) string {
	switch {
	case line.SizeName != "" && line.FrameName != "":
		return line.SizeName + " / " + line.FrameName
	case line.SizeName != "":
		return line.SizeName
	case line.FrameName != "":
		return line.FrameName
	default:
		return ""
	}
}

func formatCents(amount int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %.2f", currency, float64(amount)/100)
}
