package market

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

// Curation outcome reason codes.
const (
	CurationReasonOK            = "ok"
	CurationReasonNotSettled    = "cycle_not_settled"
	CurationReasonWaitWindow    = "wait_window"
	CurationReasonNoneOrAlready = "none_or_already_awarded"
)

// CurationOutcome reports a curation pass. Skips are structured results,
// never errors.
type CurationOutcome struct {
	Awarded bool                           `json:"awarded"`
	Reason  string                         `json:"reason"`
	Rows    []repository.CurationRewardRow `json:"rows"`
}

// ApplyCurationRewards runs the click-driven reward pass for a settled
// cycle. It is idempotent per cycle and, unless forced, waits until the
// cycle has been closed for the configured window.
func (s *Service) ApplyCurationRewards(ctx context.Context, cycleID string, force bool) (CurationOutcome, error) {
	cycle, err := s.Repo.GetCycle(ctx, cycleID)
	if err != nil {
		return CurationOutcome{}, err
	}
	if cycle.Status != models.CycleStatusSettled {
		return CurationOutcome{Reason: CurationReasonNotSettled}, nil
	}
	if !force && cycle.ClosedAt != nil && s.CurationMinAgeHours > 0 {
		minAge := time.Duration(s.CurationMinAgeHours) * time.Hour
		if time.Since(*cycle.ClosedAt) < minAge {
			return CurationOutcome{Reason: CurationReasonWaitWindow}, nil
		}
	}

	rows, err := s.Repo.ApplyCurationRewards(ctx, cycleID)
	if err != nil {
		return CurationOutcome{}, err
	}
	if len(rows) == 0 {
		return CurationOutcome{Reason: CurationReasonNoneOrAlready}, nil
	}

	if s.Logger != nil {
		s.Logger.Info("curation rewards applied",
			zap.String("cycle_id", cycleID),
			zap.Int("rows", len(rows)))
	}
	return CurationOutcome{Awarded: true, Reason: CurationReasonOK, Rows: rows}, nil
}
