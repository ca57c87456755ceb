package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"inpeak-backend/internal/models"
)

func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the tables owned by the grading pipeline.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(&models.Question{}, &models.GradingTask{}, &models.Answer{}, &models.MemberStatistic{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database schema migrated")
	return nil
}
