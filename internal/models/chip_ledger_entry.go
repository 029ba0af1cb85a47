package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ledger event types written by the engine.
const (
	LedgerEventSignupBonus      = "signup_bonus"
	LedgerEventDailyFaucet      = "daily_faucet"
	LedgerEventPredictionReward = "prediction_reward"
	LedgerEventCurationReward   = "curation_reward"
)

// ChipLedgerEntry is an append-only audit record of a balance change. A
// user's current_chips must always equal the sum of their ledger deltas.
type ChipLedgerEntry struct {
	ID         string         `gorm:"primaryKey;type:text"`
	UserID     string         `gorm:"type:text;not null;index"`
	CycleID    *string        `gorm:"type:text;index"`
	EventType  string         `gorm:"type:varchar(30);not null;index"`
	ChipsDelta int64          `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;autoCreateTime"`
}

func (ChipLedgerEntry) TableName() string {
	return "chip_ledger"
}
