package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobRun is an exactly-once execution marker. The unique (job_name, run_key)
// index is the claim primitive: whoever inserts the row owns the run.
type JobRun struct {
	ID        string         `gorm:"primaryKey;type:text"`
	JobName   string         `gorm:"type:varchar(50);not null;uniqueIndex:uniq_job_run_key"`
	RunKey    string         `gorm:"type:varchar(100);not null;uniqueIndex:uniq_job_run_key"`
	Status    string         `gorm:"type:varchar(10);not null;default:DONE"`
	Details   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (JobRun) TableName() string {
	return "job_runs"
}
