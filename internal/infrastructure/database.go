package infrastructure

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crafttrace/settlement/internal/model"
)

// ConnectDatabase establishes a connection to PostgreSQL using GORM
func ConnectDatabase(config *DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.Database,
		config.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  true,
			},
		),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// MigrateAllSchemas performs all database migrations in dependency order
func MigrateAllSchemas(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return fmt.Errorf("failed to migrate User table: %w", err)
	}
	if err := db.AutoMigrate(&model.Product{}); err != nil {
		return fmt.Errorf("failed to migrate Product table: %w", err)
	}
	if err := db.AutoMigrate(&model.CartItem{}); err != nil {
		return fmt.Errorf("failed to migrate CartItem table: %w", err)
	}
	if err := db.AutoMigrate(&model.Order{}); err != nil {
		return fmt.Errorf("failed to migrate Order table: %w", err)
	}
	if err := db.AutoMigrate(&model.OrderItem{}); err != nil {
		return fmt.Errorf("failed to migrate OrderItem table: %w", err)
	}
	if err := createAdditionalIndexes(db); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}
	return nil
}

// createAdditionalIndexes creates indexes AutoMigrate cannot express.
// The merchant order no must be unique only once assigned, so the unique
// index excludes the empty string.
func createAdditionalIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_merchant_order_no
		ON orders(merchant_order_no)
		WHERE merchant_order_no <> ''
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_orders_user_status
		ON orders(user_id, status)
	`).Error; err != nil {
		return err
	}

	return nil
}
