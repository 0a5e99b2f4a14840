package db

import (
	"fmt"

	"github.com/zulandar/dealyard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Proposal{},
		&models.Offer{},
		&models.NegotiatingMessage{},
		&models.Contract{},
		&models.ContractStep{},
		&models.ContractStepApproval{},
		&models.ContractLog{},
		&models.Notification{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops and recreates every table. Used by "dy db reset".
func Reset(db *gorm.DB) error {
	all := AllModels()
	// Drop dependents first.
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", all[i], err)
		}
	}
	return AutoMigrate(db)
}
