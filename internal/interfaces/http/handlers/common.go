// internal/interfaces/http/handlers/common.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
)

var errAmbiguousIdentity = errors.New("request carries both a user token and a guest token")

// resolveIdentity derives the caller's cart identity from the request: the
// authenticated user id when a JWT is present, otherwise the X-Guest-Token
// header. Carrying both is rejected.
func resolveIdentity(c *gin.Context) (cart.Identity, error) {
	guestToken := middleware.GetGuestTokenFromRequest(c)

	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		if guestToken != "" {
			return cart.Identity{}, errAmbiguousIdentity
		}
		id := cart.Identity{UserID: &userID}
		if email, ok := middleware.GetUserEmailFromContext(c); ok {
			id.Email = email
		}
		return id, nil
	}

	id := cart.Identity{GuestToken: guestToken}
	if err := id.Validate(); err != nil {
		return cart.Identity{}, err
	}
	return id, nil
}

// newLogger builds a logrus logger configured like the request logger
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// parsePage reads page/limit query params with sane bounds
func parsePage(c *gin.Context) (int, int) {
	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	return page, limit
}
