// Package market implements the prediction game's core operations:
// candidate submission, ranked picks, market-implied probabilities,
// settlement, and the curation reward pass.
package market

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger

	// CurationMinAgeHours gates the curation pass until a settled cycle has
	// aged; zero disables the wait window.
	CurationMinAgeHours int
}

func (s *Service) SubmitCandidate(ctx context.Context, cycleID, userID, rawURL, title string) (*models.CandidateLink, error) {
	return s.Repo.CreateCandidate(ctx, cycleID, userID, rawURL, title)
}

func (s *Service) SetRankedPicks(ctx context.Context, cycleID, userID string, candidateIDs []string) ([]models.Pick, error) {
	return s.Repo.SetRankedPicks(ctx, cycleID, userID, candidateIDs)
}

// CandidateProbability is one candidate's share of the cycle's rank-weighted
// pick mass.
type CandidateProbability struct {
	CandidateID       string  `json:"candidate_id"`
	URL               string  `json:"url"`
	Domain            string  `json:"domain"`
	RankWeightScore   int64   `json:"rank_weight_score"`
	MarketProbability float64 `json:"market_probability"`
}

// Probabilities aggregates rank weights over all picks in the cycle and
// normalizes by the total weight. Zero-weight candidates are included; with
// no pick weight at all every probability is zero. Read-only, safe to call
// on an open cycle.
func (s *Service) Probabilities(ctx context.Context, cycleID string) ([]CandidateProbability, error) {
	candidates, err := s.Repo.ListCandidates(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	picks, err := s.Repo.ListPicks(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]int64, len(candidates))
	var totalWeight int64
	for _, pick := range picks {
		weight, ok := models.RankWeights[pick.Rank]
		if !ok {
			weight = 1
		}
		weights[pick.CandidateID] += weight
		totalWeight += weight
	}

	output := make([]CandidateProbability, 0, len(candidates))
	for _, candidate := range candidates {
		score := weights[candidate.ID]
		probability := 0.0
		if totalWeight > 0 {
			probability = float64(score) / float64(totalWeight)
		}
		output = append(output, CandidateProbability{
			CandidateID:       candidate.ID,
			URL:               candidate.OriginalURL,
			Domain:            candidate.Domain,
			RankWeightScore:   score,
			MarketProbability: probability,
		})
	}

	// Stable: ties keep candidate creation order.
	sort.SliceStable(output, func(i, j int) bool {
		return output[i].MarketProbability > output[j].MarketProbability
	})
	return output, nil
}
