package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/urlx"
)

// --- Cycles -----------------------------------------------------------------

func (s *Store) CreateCycle(ctx context.Context, cycleDate string) (*models.Cycle, error) {
	if cycleDate == "" {
		cycleDate = nowUTC().Format(dateLayout)
	}
	cycle := models.Cycle{
		ID:        newID("cyc"),
		CycleDate: cycleDate,
		Status:    models.CycleStatusOpen,
		OpenedAt:  nowUTC(),
	}
	if err := s.db.WithContext(ctx).Create(&cycle).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (s *Store) GetCycle(ctx context.Context, cycleID string) (*models.Cycle, error) {
	var cycle models.Cycle
	if err := s.db.WithContext(ctx).First(&cycle, "id = ?", cycleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cycle %s: %w", cycleID, repository.ErrNotFound)
		}
		return nil, err
	}
	return &cycle, nil
}

// GetOpenCycle returns the most recently opened OPEN cycle, or nil when no
// cycle is open. Absence is a normal state, not an error.
func (s *Store) GetOpenCycle(ctx context.Context) (*models.Cycle, error) {
	var cycle models.Cycle
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CycleStatusOpen).
		Order("opened_at DESC").
		First(&cycle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (s *Store) ListCycles(ctx context.Context, limit int) ([]models.Cycle, error) {
	if limit <= 0 {
		limit = 100
	}
	var cycles []models.Cycle
	err := s.db.WithContext(ctx).
		Order("cycle_date DESC").
		Order("opened_at DESC").
		Limit(limit).
		Find(&cycles).Error
	return cycles, err
}

// SaveCycleResults writes one result row per candidate and flips the cycle
// to SETTLED in the same transaction, so a partial failure leaves the cycle
// observably OPEN with no result rows.
func (s *Store) SaveCycleResults(ctx context.Context, cycleID string, winnerCandidateIDs []string) error {
	winners := make(map[string]struct{}, len(winnerCandidateIDs))
	for _, id := range winnerCandidateIDs {
		winners[id] = struct{}{}
	}
	return s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		candidates, err := tx.ListCandidates(ctx, cycleID)
		if err != nil {
			return err
		}
		if err := tx.db.WithContext(ctx).
			Where("cycle_id = ?", cycleID).
			Delete(&models.CycleResult{}).Error; err != nil {
			return err
		}
		for _, candidate := range candidates {
			_, isWinner := winners[candidate.ID]
			result := models.CycleResult{
				CycleID:     cycleID,
				CandidateID: candidate.ID,
				IsWinner:    isWinner,
			}
			if err := tx.db.WithContext(ctx).Create(&result).Error; err != nil {
				return err
			}
		}
		closedAt := nowUTC()
		res := tx.db.WithContext(ctx).Model(&models.Cycle{}).
			Where("id = ?", cycleID).
			Updates(map[string]any{
				"status":    models.CycleStatusSettled,
				"closed_at": closedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("cycle %s: %w", cycleID, repository.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListWinnerCandidateIDs(ctx context.Context, cycleID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.CycleResult{}).
		Where("cycle_id = ? AND is_winner = ?", cycleID, true).
		Pluck("candidate_id", &ids).Error
	return ids, err
}

// --- Candidates -------------------------------------------------------------

// CreateCandidate dedupes on the canonical URL: resubmitting a link already
// in the cycle returns the existing row.
func (s *Store) CreateCandidate(ctx context.Context, cycleID, userID, rawURL, title string) (*models.CandidateLink, error) {
	if _, err := s.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	canonical := urlx.Canonicalize(rawURL)
	candidate := models.CandidateLink{
		ID:                newID("cand"),
		CycleID:           cycleID,
		SubmittedByUserID: userID,
		OriginalURL:       rawURL,
		CanonicalURL:      canonical,
		Domain:            urlx.Domain(canonical),
		Title:             title,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cycle_id"}, {Name: "canonical_url"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return nil, res.Error
	}

	var existing models.CandidateLink
	if err := s.db.WithContext(ctx).
		First(&existing, "cycle_id = ? AND canonical_url = ?", cycleID, canonical).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Store) GetCandidate(ctx context.Context, candidateID string) (*models.CandidateLink, error) {
	var candidate models.CandidateLink
	if err := s.db.WithContext(ctx).First(&candidate, "id = ?", candidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("candidate %s: %w", candidateID, repository.ErrNotFound)
		}
		return nil, err
	}
	return &candidate, nil
}

func (s *Store) ListCandidates(ctx context.Context, cycleID string) ([]models.CandidateLink, error) {
	var candidates []models.CandidateLink
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&candidates).Error
	return candidates, err
}

// --- Picks ------------------------------------------------------------------

// SetRankedPicks replaces the user's whole pick set for the cycle. Ranks are
// assigned from the order of candidateIDs, 1 being most confident.
func (s *Store) SetRankedPicks(ctx context.Context, cycleID, userID string, candidateIDs []string) ([]models.Pick, error) {
	if len(candidateIDs) > models.MaxPicksPerCycle {
		return nil, fmt.Errorf("at most %d picks allowed, got %d: %w",
			models.MaxPicksPerCycle, len(candidateIDs), repository.ErrTooManyPicks)
	}
	seen := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("candidate %s picked twice: %w", id, repository.ErrDuplicatePick)
		}
		seen[id] = struct{}{}
	}
	if len(candidateIDs) > 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.CandidateLink{}).
			Where("cycle_id = ? AND id IN ?", cycleID, candidateIDs).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count != int64(len(candidateIDs)) {
			return nil, fmt.Errorf("cycle %s: %w", cycleID, repository.ErrPickOutsideCycle)
		}
	}

	err := s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		if err := tx.db.WithContext(ctx).
			Where("cycle_id = ? AND user_id = ?", cycleID, userID).
			Delete(&models.Pick{}).Error; err != nil {
			return err
		}
		pickedAt := nowUTC()
		for idx, candidateID := range candidateIDs {
			pick := models.Pick{
				ID:          newID("pk"),
				CycleID:     cycleID,
				UserID:      userID,
				CandidateID: candidateID,
				Rank:        idx + 1,
				PickedAt:    pickedAt,
			}
			if err := tx.db.WithContext(ctx).Create(&pick).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListUserPicks(ctx, cycleID, userID)
}

func (s *Store) ListPicks(ctx context.Context, cycleID string) ([]models.Pick, error) {
	var picks []models.Pick
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("picked_at ASC").
		Order("rank ASC").
		Find(&picks).Error
	return picks, err
}

func (s *Store) ListUserPicks(ctx context.Context, cycleID, userID string) ([]models.Pick, error) {
	var picks []models.Pick
	err := s.db.WithContext(ctx).
		Where("cycle_id = ? AND user_id = ?", cycleID, userID).
		Order("rank ASC").
		Find(&picks).Error
	return picks, err
}

// --- Model predictions ------------------------------------------------------

func (s *Store) UpsertModelPrediction(ctx context.Context, item *models.ModelPrediction) error {
	item.UpdatedAt = time.Time{}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "cycle_id"}, {Name: "model_user_id"}, {Name: "candidate_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"probability", "explanation", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) ListModelPredictions(ctx context.Context, cycleID, modelUserID string) ([]models.ModelPrediction, error) {
	query := s.db.WithContext(ctx).Where("cycle_id = ?", cycleID)
	if modelUserID != "" {
		query = query.Where("model_user_id = ?", modelUserID)
	}
	var predictions []models.ModelPrediction
	err := query.Order("probability DESC").Find(&predictions).Error
	return predictions, err
}
