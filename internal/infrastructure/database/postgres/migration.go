// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"
	"time"

	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/tracking"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Dependency order: orders before their items and history
	models := []interface{}{
		&coupon.Coupon{},
		&tracking.CartTrackingRecord{},
		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Coupon indexes
		"CREATE INDEX IF NOT EXISTS idx_coupons_active_window ON coupons(is_active, starts_at, expires_at)",

		// Cart tracking indexes: the abandoned sweep scans by activity
		"CREATE INDEX IF NOT EXISTS idx_cart_tracking_last_activity ON cart_tracking_records(last_activity_at)",
		"CREATE INDEX IF NOT EXISTS idx_cart_tracking_abandoned ON cart_tracking_records(last_activity_at, checkout_completed_at, item_count)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",

		// Order items indexes
		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",

		// Order status history indexes
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedCoupons(); err != nil {
		return fmt.Errorf("failed to seed coupons: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// seedCoupons creates starter coupons for development environments
func (m *Migration) seedCoupons() error {
	log.Println("🏷️ Seeding coupons...")

	now := time.Now().UTC()
	yearOut := now.AddDate(1, 0, 0)

	coupons := []coupon.Coupon{
		{
			Code:              "WELCOME10",
			Type:              coupon.TypePercentage,
			Value:             10,
			MinPurchaseAmount: 2000,
			MaxDiscountAmount: 5000,
			StartsAt:          &now,
			ExpiresAt:         &yearOut,
			IsActive:          true,
		},
		{
			Code:              "FREESHIP",
			Type:              coupon.TypeFixedAmount,
			Value:             999,
			MinPurchaseAmount: 5000,
			StartsAt:          &now,
			ExpiresAt:         &yearOut,
			IsActive:          true,
		},
	}

	for _, c := range coupons {
		var existing coupon.Coupon
		result := m.db.Where("code = ?", c.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&c).Error; err != nil {
				return err
			}
			log.Printf("✅ Created coupon: %s", c.Code)
		} else {
			log.Printf("⏭️ Coupon already exists: %s", c.Code)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Reverse dependency order
	tables := []string{
		"order_status_history",
		"order_items",
		"orders",
		"cart_tracking_records",
		"coupons",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	return nil
}
