package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/market"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

// ErrMissingExplanation is the contract violation for a selected candidate
// without an explanation. It aborts the whole cycle run for the offending
// agent; silently dropping the candidate would break the transparency
// guarantee the runtime exists to provide.
var ErrMissingExplanation = errors.New("selected candidate has empty explanation")

// PredictionRow is one candidate's scored outcome for a model.
type PredictionRow struct {
	CandidateID string  `json:"candidate_id"`
	Probability float64 `json:"probability"`
	Explanation string  `json:"explanation"`
	Selected    bool    `json:"selected"`
}

// RunResult is one model's output for a cycle.
type RunResult struct {
	ModelUserID   string          `json:"model_user_id"`
	SelectedCount int             `json:"selected_count"`
	Predictions   []PredictionRow `json:"predictions"`
}

// Runner executes every enabled configured agent against a cycle.
type Runner struct {
	Repo   repository.Repository
	Market *market.Service
	Logger *zap.Logger

	configPath string

	mu      sync.RWMutex
	configs []Config
}

func NewRunner(repo repository.Repository, marketSvc *market.Service, logger *zap.Logger, configPath string) (*Runner, error) {
	configs, err := LoadConfigs(configPath)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Repo:       repo,
		Market:     marketSvc,
		Logger:     logger,
		configPath: configPath,
		configs:    configs,
	}, nil
}

func (r *Runner) Configs() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, len(r.configs))
	copy(out, r.configs)
	return out
}

// ReloadConfigs re-reads the config file, replacing the agent set.
func (r *Runner) ReloadConfigs() ([]Config, error) {
	configs, err := LoadConfigs(r.configPath)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.configs = configs
	r.mu.Unlock()
	return configs, nil
}

// RunCycle runs every enabled agent against the cycle's candidates. Each
// agent's picks and prediction rows commit atomically: a contract violation
// rolls the agent's whole pass back and fails the run.
func (r *Runner) RunCycle(ctx context.Context, cycleID string) (map[string]RunResult, error) {
	candidates, err := r.Repo.ListCandidates(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	output := map[string]RunResult{}
	if len(candidates) == 0 {
		return output, nil
	}

	for _, cfg := range r.Configs() {
		if !cfg.Enabled {
			continue
		}
		result, err := r.runAgent(ctx, cycleID, cfg, candidates)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", cfg.ID, err)
		}
		output[cfg.ID] = result
	}
	return output, nil
}

func (r *Runner) runAgent(ctx context.Context, cycleID string, cfg Config, candidates []models.CandidateLink) (RunResult, error) {
	modelUser, err := r.Repo.GetOrCreateAgentUser(ctx, cfg.ID)
	if err != nil {
		return RunResult{}, err
	}
	strategy, err := newStrategy(cfg.Strategy)
	if err != nil {
		return RunResult{}, err
	}

	probabilities := normalizeProbabilities(strategy.PredictProbabilities(cfg, candidates), candidates)

	ranked := make([]models.CandidateLink, len(candidates))
	copy(ranked, candidates)
	// Stable: ties preserve candidate creation order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return probabilities[ranked[i].ID] > probabilities[ranked[j].ID]
	})

	pickCap := cfg.MaxDailyPicks
	if pickCap > models.MaxPicksPerCycle {
		pickCap = models.MaxPicksPerCycle
	}
	if pickCap > len(ranked) {
		pickCap = len(ranked)
	}
	if pickCap < 0 {
		pickCap = 0
	}
	selectedIDs := make([]string, 0, pickCap)
	selectedSet := make(map[string]struct{}, pickCap)
	for _, candidate := range ranked[:pickCap] {
		selectedIDs = append(selectedIDs, candidate.ID)
		selectedSet[candidate.ID] = struct{}{}
	}

	rows := make([]PredictionRow, 0, len(candidates))
	err = r.Repo.InTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.SetRankedPicks(ctx, cycleID, modelUser.ID, selectedIDs); err != nil {
			return err
		}
		for _, candidate := range candidates {
			_, selected := selectedSet[candidate.ID]
			explanation := strategy.ExplainChoice(cfg, candidate, probabilities[candidate.ID], selected)
			if selected && strings.TrimSpace(explanation) == "" {
				return fmt.Errorf("candidate %s: %w", candidate.ID, ErrMissingExplanation)
			}
			if err := tx.UpsertModelPrediction(ctx, &models.ModelPrediction{
				CycleID:     cycleID,
				ModelUserID: modelUser.ID,
				CandidateID: candidate.ID,
				Probability: probabilities[candidate.ID],
				Explanation: explanation,
			}); err != nil {
				return err
			}
			rows = append(rows, PredictionRow{
				CandidateID: candidate.ID,
				Probability: probabilities[candidate.ID],
				Explanation: explanation,
				Selected:    selected,
			})
		}
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Probability > rows[j].Probability
	})

	if r.Logger != nil {
		r.Logger.Info("model run complete",
			zap.String("cycle_id", cycleID),
			zap.String("model_id", cfg.ID),
			zap.Int("selected", len(selectedIDs)),
			zap.Int("candidates", len(candidates)))
	}
	return RunResult{
		ModelUserID:   modelUser.ID,
		SelectedCount: len(selectedIDs),
		Predictions:   rows,
	}, nil
}

// normalizeProbabilities enforces the runtime contract on any strategy's
// raw output: every candidate appears, negatives clamp to zero, and a
// non-positive total falls back to uniform.
func normalizeProbabilities(raw map[string]float64, candidates []models.CandidateLink) map[string]float64 {
	safe := make(map[string]float64, len(candidates))
	var total float64
	for _, candidate := range candidates {
		value := raw[candidate.ID]
		if value < 0 {
			value = 0
		}
		safe[candidate.ID] = value
		total += value
	}
	if total <= 0 {
		if len(candidates) == 0 {
			return safe
		}
		uniform := 1.0 / float64(len(candidates))
		for _, candidate := range candidates {
			safe[candidate.ID] = uniform
		}
		return safe
	}
	for id, value := range safe {
		safe[id] = value / total
	}
	return safe
}
