// internal/interfaces/http/handlers/order.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/tracking"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/email"
	"github.com/your-org/storefront-backend/internal/pkg/pdf"
	"gorm.io/gorm"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService *order.Service
	pdfService   *pdf.Service
	config       *config.Config
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(db *gorm.DB, cache *redis.Client, cfg *config.Config) *OrderHandler {
	sessions := payment.NewSessionStore(cache, cfg.Cart.SessionTTL)
	mailer := email.NewOrderMailer(email.NewEmailService(cfg))
	orderService := order.NewService(
		db,
		sessions,
		coupon.NewService(db),
		tracking.NewService(db),
		mailer,
		newLogger(cfg),
	)

	return &OrderHandler{
		orderService: orderService,
		pdfService:   pdf.NewService(cfg),
		config:       cfg,
	}
}

// MaterializeRequest names the completed session to turn into an order
type MaterializeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// MaterializeOrder handles POST /orders/materialize. Safe to call more than
// once for the same session; repeats return the already-materialized order.
func (h *OrderHandler) MaterializeOrder(c *gin.Context) {
	var req MaterializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	materialized, err := h.orderService.MaterializeFromSession(c.Request.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
		case errors.Is(err, order.ErrSessionNotCompleted):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Payment has not completed for this session",
			})
		case errors.Is(err, order.ErrEmptySession):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Session has no items",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to materialize order",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order materialized successfully",
		"data":    materialized,
	})
}

// GetOrderBySession handles GET /orders/session/:session_id
func (h *OrderHandler) GetOrderBySession(c *gin.Context) {
	sessionID := c.Param("session_id")

	var userID *uint
	if id, ok := middleware.GetUserIDFromContext(c); ok {
		userID = &id
	}

	found, err := h.orderService.GetOrderBySession(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve order",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    found,
	})
}

// GetGuestOrder handles GET /orders/guest/lookup?order_number=&email=
func (h *OrderHandler) GetGuestOrder(c *gin.Context) {
	orderNumber := c.Query("order_number")
	emailAddr := c.Query("email")
	if orderNumber == "" || emailAddr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "order_number and email are required",
		})
		return
	}

	found, err := h.orderService.GetGuestOrder(c.Request.Context(), orderNumber, emailAddr)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve order",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    found,
	})
}

// GetOrders handles GET /orders (user's own orders)
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	page, limit := parsePage(c)

	response, err := h.orderService.GetUserOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    response,
	})
}

// AttachGuestOrdersRequest carries the guest token whose orders are claimed
type AttachGuestOrdersRequest struct {
	GuestToken string `json:"guest_token" binding:"required"`
}

// AttachGuestOrders handles POST /orders/attach. It claims guest orders for
// the signed-in user after an identity transition.
func (h *OrderHandler) AttachGuestOrders(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	var req AttachGuestOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	attached, err := h.orderService.AttachGuestOrdersToUser(c.Request.Context(), req.GuestToken, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to attach guest orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Guest orders attached successfully",
		"data": gin.H{
			"attached": attached,
		},
	})
}

// GetInvoice handles GET /orders/:id/invoice
func (h *OrderHandler) GetInvoice(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	found, err := h.orderService.GetOrder(c.Request.Context(), uint(orderID))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve order",
		})
		return
	}

	// Owners and admins only
	if !middleware.IsAdminFromContext(c) {
		userID, ok := middleware.GetUserIDFromContext(c)
		if !ok || found.UserID == nil || *found.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Not authorized to access this invoice",
			})
			return
		}
	}

	invoice, err := h.pdfService.GenerateInvoice(found)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate invoice",
		})
		return
	}

	filename := fmt.Sprintf("invoice-%s.pdf", found.OrderNumber)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", invoice.Bytes())
}

// AdminListOrders handles GET /admin/orders
func (h *OrderHandler) AdminListOrders(c *gin.Context) {
	page, limit := parsePage(c)
	status := order.OrderStatus(c.Query("status"))

	response, err := h.orderService.ListOrders(c.Request.Context(), status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    response,
	})
}

// UpdateStatusRequest is the admin status change payload
type UpdateStatusRequest struct {
	Status  order.OrderStatus `json:"status" binding:"required"`
	Comment string            `json:"comment"`
}

// UpdateOrderStatus handles PUT /admin/orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	adminID, _ := middleware.GetUserIDFromContext(c)

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	err = h.orderService.UpdateOrderStatus(c.Request.Context(), uint(orderID), req.Status, req.Comment, adminID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
	})
}

// CancelOrderRequest is the admin cancellation payload
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelOrder handles POST /admin/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	adminID, _ := middleware.GetUserIDFromContext(c)

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	err = h.orderService.CancelOrder(c.Request.Context(), uint(orderID), req.Reason, adminID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
	})
}
