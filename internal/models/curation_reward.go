package models

import "time"

// CurationReward is the secondary reward row for a submitter whose links
// drew clicks. Existence of any row for a cycle marks the cycle as already
// awarded.
type CurationReward struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	CycleID      string    `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_user_curation"`
	UserID       string    `gorm:"type:text;not null;uniqueIndex:uniq_cycle_user_curation"`
	Rank         int       `gorm:"not null"`
	UniqueClicks int       `gorm:"not null"`
	RewardChips  int64     `gorm:"not null"`
	AwardedAt    time.Time `gorm:"type:timestamptz;not null"`
}

func (CurationReward) TableName() string {
	return "curation_rewards"
}
