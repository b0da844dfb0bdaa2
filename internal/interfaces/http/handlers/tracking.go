// internal/interfaces/http/handlers/tracking.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/tracking"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// TrackingHandler handles cart tracking endpoints
type TrackingHandler struct {
	trackingService *tracking.Service
	config          *config.Config
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(db *gorm.DB, cfg *config.Config) *TrackingHandler {
	return &TrackingHandler{
		trackingService: tracking.NewService(db),
		config:          cfg,
	}
}

// TrackCartRequest is the upsert payload
type TrackCartRequest struct {
	Snapshot cart.Snapshot `json:"snapshot"`
}

// TrackCart handles POST /cart/track
func (h *TrackingHandler) TrackCart(c *gin.Context) {
	identity, err := resolveIdentity(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	var req TrackCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.trackingService.TrackCart(c.Request.Context(), identity, req.Snapshot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	status := http.StatusOK
	if result.Action == tracking.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"message": "Cart tracked successfully",
		"data":    result,
	})
}

// GetCart handles GET /cart/track
func (h *TrackingHandler) GetCart(c *gin.Context) {
	identity, err := resolveIdentity(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	record, err := h.trackingService.GetCart(c.Request.Context(), identity)
	if err != nil {
		if errors.Is(err, tracking.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No tracked cart for this identity",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve cart",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    record,
	})
}

// ConvertGuestRequest carries the guest token being claimed
type ConvertGuestRequest struct {
	GuestToken string `json:"guest_token" binding:"required"`
}

// ConvertGuestToUser handles POST /cart/track/convert
func (h *TrackingHandler) ConvertGuestToUser(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	var req ConvertGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.trackingService.ConvertGuestToUser(c.Request.Context(), req.GuestToken, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to convert guest cart",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Guest cart converted successfully",
	})
}

// IncrementMarketingEmail handles POST /cart/track/marketing-email
func (h *TrackingHandler) IncrementMarketingEmail(c *gin.Context) {
	identity, err := resolveIdentity(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	count, err := h.trackingService.IncrementMarketingEmailCount(c.Request.Context(), identity)
	if err != nil {
		if errors.Is(err, tracking.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No tracked cart for this identity",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to increment marketing email count",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Marketing email count incremented",
		"data": gin.H{
			"marketing_emails_sent": count,
		},
	})
}
