package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/models"
)

// AutoMigrate applies the schema for every persistent model. Ordering matters:
// parents before children so foreign keys resolve.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	migrations := []any{
		&models.Session{},
		&models.Participant{},
		&models.Feature{},
		&models.Vote{},
	}

	if err := db.AutoMigrate(migrations...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
