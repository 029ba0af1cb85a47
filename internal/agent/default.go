package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
)

// StrategyDefault identifies the built-in deterministic baseline strategy.
const StrategyDefault = "default"

func init() {
	Register(StrategyDefault, func() Strategy { return &defaultStrategy{} })
}

// domainBonus nudges scores for domains that historically fit the winning
// link set.
var domainBonus = map[string]float64{
	"ft.com":        1.15,
	"economist.com": 1.12,
	"arxiv.org":     1.10,
	"bloomberg.com": 1.08,
	"substack.com":  1.05,
}

// defaultStrategy scores each candidate from a hash of (model id, canonical
// URL), so a rerun without new candidates produces the same picks.
type defaultStrategy struct{}

func (dfs *defaultStrategy) PredictProbabilities(cfg Config, candidates []models.CandidateLink) map[string]float64 {
	raw := make(map[string]float64, len(candidates))
	for _, candidate := range candidates {
		digest := sha256.Sum256([]byte(cfg.ID + ":" + candidate.CanonicalURL))
		seed, _ := strconv.ParseUint(hex.EncodeToString(digest[:])[:10], 16, 64)
		base := float64(seed) / float64(uint64(1)<<40)
		bonus, ok := domainBonus[candidate.Domain]
		if !ok {
			bonus = 1.0
		}
		score := (0.5 + base) * bonus
		if score < 0.0001 {
			score = 0.0001
		}
		raw[candidate.ID] = score
	}

	var total float64
	for _, score := range raw {
		total += score
	}
	if total <= 0 {
		uniform := 1.0 / float64(len(candidates))
		for _, candidate := range candidates {
			raw[candidate.ID] = uniform
		}
		return raw
	}
	for id, score := range raw {
		raw[id] = score / total
	}
	return raw
}

func (dfs *defaultStrategy) ExplainChoice(cfg Config, candidate models.CandidateLink, probability float64, selected bool) string {
	rounded := fmt.Sprintf("%.3f", probability)
	if selected {
		return fmt.Sprintf(
			"%s selected this link because it scores well on likely assorted-links fit (domain relevance plus novelty signal). Assigned probability: %s.",
			cfg.ModelName, rounded)
	}
	return fmt.Sprintf(
		"%s evaluated this link but ranked it below the top %d. Assigned probability: %s.",
		cfg.ModelName, cfg.MaxDailyPicks, rounded)
}
