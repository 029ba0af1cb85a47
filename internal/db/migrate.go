package db

import (
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Cycle{},
		&models.CandidateLink{},
		&models.Pick{},
		&models.ChipLedgerEntry{},
		&models.CycleResult{},
		&models.CurationReward{},
		&models.ModelPrediction{},
		&models.ClickEvent{},
		&models.JobRun{},
	)
}
