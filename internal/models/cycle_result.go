package models

// CycleResult records a candidate's outcome for a settled cycle. One row per
// candidate, winners flagged. Written only inside the settlement transaction.
type CycleResult struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	CycleID     string `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_candidate_result"`
	CandidateID string `gorm:"type:text;not null;uniqueIndex:uniq_cycle_candidate_result"`
	IsWinner    bool   `gorm:"not null;default:false;index"`
}

func (CycleResult) TableName() string {
	return "cycle_results"
}
