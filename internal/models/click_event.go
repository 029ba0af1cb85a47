package models

import "time"

// ClickEvent is a deduplicated click on a candidate link. The fingerprint
// hash keeps one row per (candidate, viewer); duplicates are dropped at
// insert time by the unique index.
type ClickEvent struct {
	ID              string    `gorm:"primaryKey;type:text"`
	CandidateID     string    `gorm:"type:text;not null;index;uniqueIndex:uniq_candidate_fingerprint"`
	FingerprintHash string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_candidate_fingerprint"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ClickEvent) TableName() string {
	return "click_events"
}
