// internal/interfaces/http/handlers/webhook.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/tracking"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/pkg/email"
	"gorm.io/gorm"
)

// SignatureHeader carries the HMAC of the webhook body
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler handles payment processor callbacks
type WebhookHandler struct {
	sessions     *payment.SessionStore
	orderService *order.Service
	config       *config.Config
	logger       *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, cache *redis.Client, cfg *config.Config) *WebhookHandler {
	logger := newLogger(cfg)
	sessions := payment.NewSessionStore(cache, cfg.Cart.SessionTTL)
	mailer := email.NewOrderMailer(email.NewEmailService(cfg))
	orderService := order.NewService(
		db,
		sessions,
		coupon.NewService(db),
		tracking.NewService(db),
		mailer,
		logger,
	)

	return &WebhookHandler{
		sessions:     sessions,
		orderService: orderService,
		config:       cfg,
		logger:       logger,
	}
}

// webhookEvent is the processor's event envelope
type webhookEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// HandlePaymentWebhook handles POST /webhooks/payment. The signature covers
// the raw body, so it is read before any JSON decoding.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if !payment.VerifyWebhookSignature(h.config.External.Payment.WebhookSecret, body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid webhook signature",
		})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid webhook payload",
		})
		return
	}

	if event.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing session_id",
		})
		return
	}

	switch event.Type {
	case "payment.completed":
		h.handleCompleted(c, event.SessionID)
	case "payment.failed":
		h.handleFailed(c, event.SessionID)
	default:
		// Unknown event types are acknowledged so the processor stops retrying
		c.JSON(http.StatusOK, gin.H{
			"message": "Event ignored",
		})
	}
}

func (h *WebhookHandler) handleCompleted(c *gin.Context, sessionID string) {
	if _, err := h.sessions.MarkCompleted(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update session",
		})
		return
	}

	materialized, err := h.orderService.MaterializeFromSession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).
			Error("failed to materialize order from webhook")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to materialize order",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment processed",
		"data": gin.H{
			"order_number": materialized.OrderNumber,
		},
	})
}

func (h *WebhookHandler) handleFailed(c *gin.Context, sessionID string) {
	if _, err := h.sessions.MarkFailed(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment failure recorded",
	})
}
