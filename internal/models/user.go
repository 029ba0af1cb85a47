package models

import "time"

const (
	AccountTypeHuman = "HUMAN"
	AccountTypeAI    = "AI"
)

// User is a market participant. Agent users (AccountTypeAI) are synthetic
// accounts backing configured model agents and share every other code path
// with humans.
type User struct {
	ID                  string    `gorm:"primaryKey;type:text"`
	DisplayName         string    `gorm:"type:text;not null"`
	Email               string    `gorm:"type:text;uniqueIndex;not null"`
	AccountType         string    `gorm:"type:varchar(10);not null;default:HUMAN;index"`
	CurrentChips        int64     `gorm:"not null;default:0"`
	LastDailyCreditDate string    `gorm:"type:varchar(10);not null"`
	CreatedAt           time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
