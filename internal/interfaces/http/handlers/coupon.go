// internal/interfaces/http/handlers/coupon.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"gorm.io/gorm"
)

// CouponHandler handles coupon endpoints
type CouponHandler struct {
	couponService *coupon.Service
	config        *config.Config
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(db *gorm.DB, cfg *config.Config) *CouponHandler {
	return &CouponHandler{
		couponService: coupon.NewService(db),
		config:        cfg,
	}
}

// ValidateCouponRequest is the validation payload
type ValidateCouponRequest struct {
	Code     string `json:"code" binding:"required"`
	Subtotal int64  `json:"subtotal"`
	HasItems bool   `json:"has_items"`
}

// ValidateCoupon handles POST /coupons/validate. Rejections are a normal
// outcome, so they come back 200 with is_valid false and an error code.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result := h.couponService.Validate(c.Request.Context(), req.Code, req.Subtotal, req.HasItems)

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon validated",
		"data":    result,
	})
}

// CreateCoupon handles POST /admin/coupons
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req coupon.Coupon
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.couponService.Create(c.Request.Context(), &req); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Coupon code already exists",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Coupon created successfully",
		"data":    req,
	})
}

// ListCoupons handles GET /admin/coupons
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	page, limit := parsePage(c)

	coupons, total, err := h.couponService.List(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve coupons",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupons retrieved successfully",
		"data": gin.H{
			"coupons": coupons,
			"total":   total,
			"page":    page,
			"limit":   limit,
		},
	})
}

// DeactivateCoupon handles POST /admin/coupons/:code/deactivate
func (h *CouponHandler) DeactivateCoupon(c *gin.Context) {
	code := c.Param("code")

	if err := h.couponService.Deactivate(c.Request.Context(), code); err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Coupon not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to deactivate coupon",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon deactivated successfully",
	})
}
