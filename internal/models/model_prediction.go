package models

import "time"

// ModelPrediction is one model agent's probability and explanation for one
// candidate. Upserted per run, so a rerun overwrites the previous row.
type ModelPrediction struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	CycleID     string    `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_model_candidate"`
	ModelUserID string    `gorm:"type:text;not null;uniqueIndex:uniq_cycle_model_candidate"`
	CandidateID string    `gorm:"type:text;not null;uniqueIndex:uniq_cycle_model_candidate"`
	Probability float64   `gorm:"not null"`
	Explanation string    `gorm:"type:text;not null"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ModelPrediction) TableName() string {
	return "model_predictions"
}
