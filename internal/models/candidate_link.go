package models

import "time"

// CandidateLink is a link eligible for picking within a cycle. The canonical
// URL is the dedupe key: submitting the same link twice in one cycle returns
// the existing row.
type CandidateLink struct {
	ID                string    `gorm:"primaryKey;type:text"`
	CycleID           string    `gorm:"type:text;not null;index;uniqueIndex:uniq_cycle_canonical"`
	SubmittedByUserID string    `gorm:"type:text;not null;index"`
	OriginalURL       string    `gorm:"type:text;not null"`
	CanonicalURL      string    `gorm:"type:text;not null;uniqueIndex:uniq_cycle_canonical"`
	Domain            string    `gorm:"type:text;not null;index"`
	Title             string    `gorm:"type:text;not null"`
	CreatedAt         time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (CandidateLink) TableName() string {
	return "candidate_links"
}
