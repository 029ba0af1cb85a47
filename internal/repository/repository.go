// Package repository defines the persistence contract consumed by the
// market, agent, and job layers. The concrete engine lives in the gorm
// subpackage; everything above it depends only on this interface.
package repository

import (
	"context"
	"errors"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
)

// Sentinel errors for the engine's failure taxonomy. Validation failures
// and missing records are distinct kinds; idempotent no-ops are structured
// results, never errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrTooManyPicks     = errors.New("too many picks")
	ErrDuplicatePick    = errors.New("duplicate pick")
	ErrPickOutsideCycle = errors.New("pick does not belong to cycle")
)

// LeaderboardRow is one row of the all-time chip leaderboard.
type LeaderboardRow struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	AccountType  string `json:"account_type"`
	CurrentChips int64  `json:"current_chips"`
}

// CurationRewardRow is one computed (or applied) curation reward. Tied
// submitters are all recorded at the first position of their run.
type CurationRewardRow struct {
	UserID       string `json:"user_id"`
	Rank         int    `json:"rank"`
	UniqueClicks int    `json:"unique_clicks"`
	RewardChips  int64  `json:"reward_chips"`
}

// CurationLeaderboardRow aggregates curation rewards across cycles.
type CurationLeaderboardRow struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	TotalClicks  int64  `json:"total_clicks"`
	TotalRewards int64  `json:"total_rewards"`
	CycleCount   int64  `json:"cycle_count"`
}

// ClickOutcome reports whether a click counted. Duplicates are a structured
// no-op, not an error.
type ClickOutcome struct {
	Counted bool   `json:"counted"`
	Reason  string `json:"reason"`
}

type Repository interface {
	// InTx runs fn against a repository bound to one transaction. Returning
	// an error rolls everything back.
	InTx(ctx context.Context, fn func(Repository) error) error

	// Users and chips.
	CreateUser(ctx context.Context, displayName, email, accountType string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetOrCreateAgentUser(ctx context.Context, modelID string) (*models.User, error)
	CreditUserChips(ctx context.Context, userID string, delta int64, eventType string, cycleID *string, metadata map[string]any) error
	ApplyDailyFaucet(ctx context.Context, asOfDate string) (map[string]int64, error)
	SumLedgerDeltas(ctx context.Context, userID string) (int64, error)
	ListChipLeaderboard(ctx context.Context, limit int, accountType string) ([]LeaderboardRow, error)

	// Cycles and results.
	CreateCycle(ctx context.Context, cycleDate string) (*models.Cycle, error)
	GetCycle(ctx context.Context, cycleID string) (*models.Cycle, error)
	GetOpenCycle(ctx context.Context) (*models.Cycle, error)
	ListCycles(ctx context.Context, limit int) ([]models.Cycle, error)
	SaveCycleResults(ctx context.Context, cycleID string, winnerCandidateIDs []string) error
	ListWinnerCandidateIDs(ctx context.Context, cycleID string) ([]string, error)

	// Candidates.
	CreateCandidate(ctx context.Context, cycleID, userID, rawURL, title string) (*models.CandidateLink, error)
	GetCandidate(ctx context.Context, candidateID string) (*models.CandidateLink, error)
	ListCandidates(ctx context.Context, cycleID string) ([]models.CandidateLink, error)

	// Picks.
	SetRankedPicks(ctx context.Context, cycleID, userID string, candidateIDs []string) ([]models.Pick, error)
	ListPicks(ctx context.Context, cycleID string) ([]models.Pick, error)
	ListUserPicks(ctx context.Context, cycleID, userID string) ([]models.Pick, error)

	// Model predictions.
	UpsertModelPrediction(ctx context.Context, item *models.ModelPrediction) error
	ListModelPredictions(ctx context.Context, cycleID, modelUserID string) ([]models.ModelPrediction, error)

	// Clicks and curation rewards.
	RecordClick(ctx context.Context, candidateID, fingerprintHash string) (ClickOutcome, error)
	HasCurationRewards(ctx context.Context, cycleID string) (bool, error)
	ComputeCurationRewardRows(ctx context.Context, cycleID string) ([]CurationRewardRow, error)
	ApplyCurationRewards(ctx context.Context, cycleID string) ([]CurationRewardRow, error)
	ListCurationLeaderboard(ctx context.Context, limit int) ([]CurationLeaderboardRow, error)

	// Job claims.
	ClaimJobRun(ctx context.Context, jobName, runKey string, details map[string]any) (bool, error)
}
