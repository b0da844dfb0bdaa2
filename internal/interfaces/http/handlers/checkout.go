// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/tracking"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"gorm.io/gorm"
)

// CheckoutHandler handles checkout session endpoints
type CheckoutHandler struct {
	sessions        *payment.SessionStore
	trackingService *tracking.Service
	config          *config.Config
	logger          *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(db *gorm.DB, cache *redis.Client, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		sessions:        payment.NewSessionStore(cache, cfg.Cart.SessionTTL),
		trackingService: tracking.NewService(db),
		config:          cfg,
		logger:          newLogger(cfg),
	}
}

// CreateSessionRequest is the checkout payload: the priced cart snapshot
// plus where to ship it
type CreateSessionRequest struct {
	Snapshot        cart.Snapshot   `json:"snapshot"`
	ShippingAddress payment.Address `json:"shipping_address" binding:"required"`
	Provider        string          `json:"provider"`
}

// CreateSession handles POST /checkout/session
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	identity, err := resolveIdentity(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if req.Snapshot.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Cannot check out an empty cart",
		})
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = h.config.External.Payment.Provider
	}

	session := payment.BuildSession(req.Snapshot, identity, req.ShippingAddress, provider, h.config.Checkout)
	if err := h.sessions.Create(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create checkout session",
		})
		return
	}

	// Funnel marker; session creation stands even if this fails
	if err := h.trackingService.MarkCheckoutStarted(c.Request.Context(), identity); err != nil {
		h.logger.WithError(err).Warn("failed to mark checkout started")
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Checkout session created",
		"data":    session,
	})
}
