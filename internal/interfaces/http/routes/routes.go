// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// SetupRoutes wires every API route group
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redis.Client, cfg *config.Config) {
	SetupTrackingRoutes(rg, db, cfg)
	SetupCouponRoutes(rg, db, cfg)
	SetupCheckoutRoutes(rg, db, cache, cfg)
	SetupWebhookRoutes(rg, db, cache, cfg)
	SetupOrderRoutes(rg, db, cache, cfg)
	SetupAdminRoutes(rg, db, cache, cfg)
}

// SetupTrackingRoutes sets up cart tracking routes. Guests authenticate with
// the X-Guest-Token header, users with a JWT.
func SetupTrackingRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	trackingHandler := handlers.NewTrackingHandler(db, cfg)

	track := rg.Group("/cart/track")
	track.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		track.POST("", trackingHandler.TrackCart)
		track.GET("", trackingHandler.GetCart)
		track.POST("/marketing-email", trackingHandler.IncrementMarketingEmail)

		// Claiming a guest cart requires a signed-in user
		convert := track.Group("/convert")
		convert.Use(middleware.AuthMiddleware(cfg))
		{
			convert.POST("", trackingHandler.ConvertGuestToUser)
		}
	}
}

// SetupCouponRoutes sets up public coupon routes
func SetupCouponRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	couponHandler := handlers.NewCouponHandler(db, cfg)

	coupons := rg.Group("/coupons")
	{
		coupons.POST("/validate", couponHandler.ValidateCoupon)
	}
}

// SetupCheckoutRoutes sets up checkout session routes
func SetupCheckoutRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redis.Client, cfg *config.Config) {
	checkoutHandler := handlers.NewCheckoutHandler(db, cache, cfg)

	checkout := rg.Group("/checkout")
	checkout.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkout.POST("/session", checkoutHandler.CreateSession)
	}
}

// SetupWebhookRoutes sets up payment processor callbacks. Authentication is
// the HMAC signature, not a JWT.
func SetupWebhookRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redis.Client, cfg *config.Config) {
	webhookHandler := handlers.NewWebhookHandler(db, cache, cfg)

	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/payment", webhookHandler.HandlePaymentWebhook)
	}
}

// SetupOrderRoutes sets up order routes
func SetupOrderRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redis.Client, cfg *config.Config) {
	orderHandler := handlers.NewOrderHandler(db, cache, cfg)

	orders := rg.Group("/orders")
	orders.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		orders.POST("/materialize", orderHandler.MaterializeOrder)
		orders.GET("/session/:session_id", orderHandler.GetOrderBySession)
		orders.GET("/guest/lookup", orderHandler.GetGuestOrder)
		orders.GET("/:id/invoice", orderHandler.GetInvoice)

		// Order history and guest-order claiming require a signed-in user
		authed := orders.Group("")
		authed.Use(middleware.AuthMiddleware(cfg))
		{
			authed.GET("", orderHandler.GetOrders)
			authed.POST("/attach", orderHandler.AttachGuestOrders)
		}
	}
}

// SetupAdminRoutes sets up admin routes
func SetupAdminRoutes(rg *gin.RouterGroup, db *gorm.DB, cache *redis.Client, cfg *config.Config) {
	orderHandler := handlers.NewOrderHandler(db, cache, cfg)
	couponHandler := handlers.NewCouponHandler(db, cfg)

	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		adminOrders := admin.Group("/orders")
		{
			adminOrders.GET("", orderHandler.AdminListOrders)
			adminOrders.PUT("/:id/status", orderHandler.UpdateOrderStatus)
			adminOrders.POST("/:id/cancel", orderHandler.CancelOrder)
		}

		adminCoupons := admin.Group("/coupons")
		{
			adminCoupons.POST("", couponHandler.CreateCoupon)
			adminCoupons.GET("", couponHandler.ListCoupons)
			adminCoupons.POST("/:code/deactivate", couponHandler.DeactivateCoupon)
		}
	}
}
