package models

import "time"

const (
	CycleStatusOpen    = "OPEN"
	CycleStatusSettled = "SETTLED"
)

// Cycle is one market round tied to a calendar date. The status transition
// OPEN -> SETTLED happens exactly once, inside the settlement transaction.
type Cycle struct {
	ID        string     `gorm:"primaryKey;type:text"`
	CycleDate string     `gorm:"type:varchar(10);not null;index"`
	Status    string     `gorm:"type:varchar(10);not null;default:OPEN;index"`
	OpenedAt  time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt  *time.Time `gorm:"type:timestamptz"`
}

func (Cycle) TableName() string {
	return "cycles"
}
