package db

import (
	"fmt"

	"github.com/zulandar/parlor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Tenant{},
		&models.Service{},
		&models.Client{},
		&models.ScheduleRule{},
		&models.Appointment{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedTenant makes sure a tenant row and its seven schedule rules exist.
// Existing rows are left untouched; new rules start as non-working days.
func SeedTenant(db *gorm.DB, tenantID, platform string) error {
	tenant := models.Tenant{ID: tenantID, Platform: platform}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tenant).Error; err != nil {
		return fmt.Errorf("db: seed tenant %q: %w", tenantID, err)
	}
	for day := 0; day < models.DaysPerWeek; day++ {
		rule := models.ScheduleRule{TenantID: tenantID, DayOfWeek: day, Working: false}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "day_of_week"}},
			DoNothing: true,
		}).Create(&rule).Error
		if err != nil {
			return fmt.Errorf("db: seed schedule for %q day %d: %w", tenantID, day, err)
		}
	}
	return nil
}
