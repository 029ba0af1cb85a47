package models

import "time"

// Pick is one slot of a user's ranked choice set for a cycle. Rank 1 is the
// most confident pick. A user's set is replaced atomically on every
// submission, so ranks are always unique and contiguous from 1.
type Pick struct {
	ID          string    `gorm:"primaryKey;type:text"`
	CycleID     string    `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_user_rank;uniqueIndex:uniq_cycle_user_candidate"`
	UserID      string    `gorm:"type:text;not null;uniqueIndex:uniq_cycle_user_rank;uniqueIndex:uniq_cycle_user_candidate"`
	CandidateID string    `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_user_candidate"`
	Rank        int       `gorm:"not null;uniqueIndex:uniq_cycle_user_rank"`
	PickedAt    time.Time `gorm:"type:timestamptz;not null"`
}

func (Pick) TableName() string {
	return "picks"
}
