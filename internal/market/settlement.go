package market

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/urlx"
)

// ErrCycleSettled rejects a second settlement of the same cycle; the
// OPEN -> SETTLED transition happens exactly once.
var ErrCycleSettled = errors.New("cycle already settled")

// SettlementEntry is one user's row on a cycle's leaderboard.
type SettlementEntry struct {
	UserID       string `json:"user_id"`
	CorrectCount int    `json:"correct_count"`
	RewardChips  int64  `json:"reward_chips"`
	Rank         int    `json:"rank"`
}

// RewardModel echoes the reward table a settlement used, for audit.
type RewardModel struct {
	WrongPickPenalty int64         `json:"wrong_pick_penalty"`
	MaxPicks         int           `json:"max_picks"`
	RankRewards      map[int]int64 `json:"rank_rewards"`
}

// SettlementResult is the outcome of closing a cycle.
type SettlementResult struct {
	CycleID            string            `json:"cycle_id"`
	WinnerCandidateIDs []string          `json:"winner_candidate_ids"`
	WinnerCount        int               `json:"winner_count"`
	Ranking            []SettlementEntry `json:"ranking"`
	RewardModel        RewardModel       `json:"reward_model"`
}

// Settle closes the cycle against the winner URL set. Winner URLs are
// canonicalized with the same normalization candidates were stored under;
// URLs matching no candidate are dropped. Result rows, the status flip, and
// every reward credit are one transaction, so a failure leaves the cycle
// OPEN and retryable.
func (s *Service) Settle(ctx context.Context, cycleID string, winnerURLs []string) (*SettlementResult, error) {
	cycle, err := s.Repo.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status == models.CycleStatusSettled {
		return nil, fmt.Errorf("cycle %s: %w", cycleID, ErrCycleSettled)
	}

	candidates, err := s.Repo.ListCandidates(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	byCanonical := make(map[string]models.CandidateLink, len(candidates))
	for _, candidate := range candidates {
		byCanonical[candidate.CanonicalURL] = candidate
	}

	var winnerIDs []string
	seenCanonical := map[string]struct{}{}
	for _, rawURL := range winnerURLs {
		canonical := urlx.Canonicalize(rawURL)
		if _, dup := seenCanonical[canonical]; dup {
			continue
		}
		seenCanonical[canonical] = struct{}{}
		if candidate, ok := byCanonical[canonical]; ok {
			winnerIDs = append(winnerIDs, candidate.ID)
		}
	}
	winnerSet := make(map[string]struct{}, len(winnerIDs))
	for _, id := range winnerIDs {
		winnerSet[id] = struct{}{}
	}

	picks, err := s.Repo.ListPicks(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	rewards := map[string]int64{}
	hits := map[string]int{}
	var participantIDs []string
	seenUsers := map[string]struct{}{}
	for _, pick := range picks {
		if _, seen := seenUsers[pick.UserID]; !seen {
			participantIDs = append(participantIDs, pick.UserID)
			seenUsers[pick.UserID] = struct{}{}
		}
		if _, won := winnerSet[pick.CandidateID]; won {
			rewards[pick.UserID] += models.RankRewards[pick.Rank]
			hits[pick.UserID]++
		}
	}

	err = s.Repo.InTx(ctx, func(r repository.Repository) error {
		if err := r.SaveCycleResults(ctx, cycleID, winnerIDs); err != nil {
			return err
		}
		for _, userID := range participantIDs {
			reward := rewards[userID]
			if reward <= 0 {
				continue
			}
			if err := r.CreditUserChips(ctx, userID, reward, models.LedgerEventPredictionReward, &cycleID, map[string]any{
				"correct_picks": hits[userID],
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ranking := rankParticipants(participantIDs, rewards, hits)

	if s.Logger != nil {
		s.Logger.Info("cycle settled",
			zap.String("cycle_id", cycleID),
			zap.Int("winners", len(winnerIDs)),
			zap.Int("participants", len(participantIDs)))
	}

	return &SettlementResult{
		CycleID:            cycleID,
		WinnerCandidateIDs: winnerIDs,
		WinnerCount:        len(winnerIDs),
		Ranking:            ranking,
		RewardModel: RewardModel{
			WrongPickPenalty: 0,
			MaxPicks:         models.MaxPicksPerCycle,
			RankRewards:      models.RankRewards,
		},
	}, nil
}

// rankParticipants sorts by (reward, correct count) descending and assigns
// standard competition ranks: tied pairs share a rank, and the next distinct
// pair's rank is its 1-based position, leaving gaps after ties.
func rankParticipants(participantIDs []string, rewards map[string]int64, hits map[string]int) []SettlementEntry {
	entries := make([]SettlementEntry, 0, len(participantIDs))
	for _, userID := range participantIDs {
		entries = append(entries, SettlementEntry{
			UserID:       userID,
			CorrectCount: hits[userID],
			RewardChips:  rewards[userID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RewardChips != entries[j].RewardChips {
			return entries[i].RewardChips > entries[j].RewardChips
		}
		return entries[i].CorrectCount > entries[j].CorrectCount
	})

	currentRank := 0
	var prevReward int64 = -1
	prevCorrect := -1
	havePrev := false
	for idx := range entries {
		if !havePrev || entries[idx].RewardChips != prevReward || entries[idx].CorrectCount != prevCorrect {
			currentRank = idx + 1
			prevReward = entries[idx].RewardChips
			prevCorrect = entries[idx].CorrectCount
			havePrev = true
		}
		entries[idx].Rank = currentRank
	}
	return entries
}
