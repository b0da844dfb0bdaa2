// internal/domain/tracking/recovery.go
package tracking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
)

// RecoveryMailer sends abandoned-cart recovery emails
type RecoveryMailer interface {
	SendCartRecoveryEmail(ctx context.Context, to string, snap cart.Snapshot) error
}

// RecoverySweeper periodically finds abandoned carts and sends recovery
// emails, capped per cart so a shopper is never spammed.
type RecoverySweeper struct {
	svc    *Service
	mailer RecoveryMailer
	cfg    config.CartConfig
	logger *logrus.Logger
}

// NewRecoverySweeper creates a recovery sweeper
func NewRecoverySweeper(svc *Service, mailer RecoveryMailer, cfg config.CartConfig, logger *logrus.Logger) *RecoverySweeper {
	return &RecoverySweeper{
		svc:    svc,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (rs *RecoverySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(rs.cfg.RecoverySweepInterval)
	defer ticker.Stop()

	rs.logger.WithFields(logrus.Fields{
		"interval":        rs.cfg.RecoverySweepInterval,
		"abandoned_after": rs.cfg.AbandonedAfter,
	}).Info("Abandoned cart recovery sweeper started")

	for {
		select {
		case <-ctx.Done():
			rs.logger.Info("Abandoned cart recovery sweeper stopped")
			return
		case <-ticker.C:
			rs.Sweep(ctx)
		}
	}
}

// Sweep runs a single recovery pass. Send failures are logged and the
// counter is left untouched so the next sweep retries that cart.
func (rs *RecoverySweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-rs.cfg.AbandonedAfter)
	records, err := rs.svc.ListAbandoned(ctx, cutoff, rs.cfg.RecoveryEmailCap)
	if err != nil {
		rs.logger.WithError(err).Error("Abandoned cart listing failed")
		return
	}

	sent := 0
	for _, record := range records {
		if err := rs.mailer.SendCartRecoveryEmail(ctx, record.Email, record.Snapshot.Snapshot); err != nil {
			rs.logger.WithFields(logrus.Fields{
				"record_id": record.ID,
			}).WithError(err).Warn("Cart recovery email failed")
			continue
		}
		if _, err := rs.svc.IncrementMarketingEmailCount(ctx, record.Identity()); err != nil {
			rs.logger.WithFields(logrus.Fields{
				"record_id": record.ID,
			}).WithError(err).Warn("Failed to record recovery email send")
			continue
		}
		sent++
	}

	if len(records) > 0 {
		rs.logger.WithFields(logrus.Fields{
			"candidates": len(records),
			"sent":       sent,
		}).Info("Abandoned cart recovery sweep completed")
	}
}
