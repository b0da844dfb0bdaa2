// internal/domain/tracking/gateway.go
package tracking

import (
	"context"
	"errors"

	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// Gateway adapts the tracking service to the cart store's collaborator
// interfaces, so a sync middleware or transition handler can run directly
// against the service.
type Gateway struct {
	svc *Service
}

// NewGateway wraps a tracking service
func NewGateway(svc *Service) *Gateway {
	return &Gateway{svc: svc}
}

// TrackCart implements cart.Tracker
func (g *Gateway) TrackCart(ctx context.Context, id cart.Identity, snap cart.Snapshot) error {
	_, err := g.svc.TrackCart(ctx, id, snap)
	return err
}

// ConvertGuestToUser implements cart.RemoteCarts
func (g *Gateway) ConvertGuestToUser(ctx context.Context, guestToken string, userID uint) error {
	return g.svc.ConvertGuestToUser(ctx, guestToken, userID)
}

// FetchCart implements cart.RemoteCarts
func (g *Gateway) FetchCart(ctx context.Context, id cart.Identity) (cart.Snapshot, bool, error) {
	record, err := g.svc.GetCart(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return cart.Snapshot{}, false, nil
		}
		return cart.Snapshot{}, false, err
	}
	return record.Snapshot.Snapshot, true, nil
}
