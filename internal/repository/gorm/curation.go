package gormrepository

import (
	"context"
	"math"

	"gorm.io/gorm/clause"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

// --- Clicks -----------------------------------------------------------------

// RecordClick counts a click once per (candidate, fingerprint). Duplicates
// come back as a structured no-op.
func (s *Store) RecordClick(ctx context.Context, candidateID, fingerprintHash string) (repository.ClickOutcome, error) {
	if _, err := s.GetCandidate(ctx, candidateID); err != nil {
		return repository.ClickOutcome{}, err
	}
	click := models.ClickEvent{
		ID:              newID("clk"),
		CandidateID:     candidateID,
		FingerprintHash: fingerprintHash,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_id"}, {Name: "fingerprint_hash"}},
		DoNothing: true,
	}).Create(&click)
	if res.Error != nil {
		return repository.ClickOutcome{}, res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ClickOutcome{Counted: false, Reason: "duplicate"}, nil
	}
	return repository.ClickOutcome{Counted: true, Reason: "unique"}, nil
}

// --- Curation rewards -------------------------------------------------------

func (s *Store) HasCurationRewards(ctx context.Context, cycleID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CurationReward{}).
		Where("cycle_id = ?", cycleID).
		Count(&count).Error
	return count > 0, err
}

type clickCountRow struct {
	UserID       string
	UniqueClicks int
}

// ComputeCurationRewardRows ranks submitters by distinct clicks on their
// links and splits the fixed per-position pools across ties. A tie group
// spans a contiguous run of positions; its members share the sum of the
// table rewards for the run's table-covered positions, rounded to nearest,
// and are all recorded at the run's first position.
func (s *Store) ComputeCurationRewardRows(ctx context.Context, cycleID string) ([]repository.CurationRewardRow, error) {
	var counts []clickCountRow
	err := s.db.WithContext(ctx).
		Table("candidate_links AS c").
		Select("c.submitted_by_user_id AS user_id, COUNT(e.id) AS unique_clicks").
		Joins("LEFT JOIN click_events e ON e.candidate_id = c.id").
		Where("c.cycle_id = ?", cycleID).
		Group("c.submitted_by_user_id").
		Having("COUNT(e.id) > 0").
		Order("unique_clicks DESC, user_id ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}

	maxRank := 0
	for rank := range models.CurationRankRewards {
		if rank > maxRank {
			maxRank = rank
		}
	}

	var rows []repository.CurationRewardRow
	idx := 0
	nextRank := 1
	for idx < len(counts) && nextRank <= maxRank {
		clickCount := counts[idx].UniqueClicks
		groupStart := idx
		for idx < len(counts) && counts[idx].UniqueClicks == clickCount {
			idx++
		}
		group := counts[groupStart:idx]

		startRank := nextRank
		endRank := startRank + len(group) - 1
		if endRank > maxRank {
			endRank = maxRank
		}
		var pool int64
		covered := 0
		for rank := startRank; rank <= endRank; rank++ {
			if reward, ok := models.CurationRankRewards[rank]; ok {
				pool += reward
				covered++
			}
		}
		if covered == 0 {
			break
		}

		// Round-to-nearest split; the drift against the nominal pool when
		// the group size does not divide evenly is intentional.
		split := int64(math.Round(float64(pool) / float64(len(group))))
		for _, member := range group {
			rows = append(rows, repository.CurationRewardRow{
				UserID:       member.UserID,
				Rank:         startRank,
				UniqueClicks: member.UniqueClicks,
				RewardChips:  split,
			})
		}
		nextRank += len(group)
	}
	return rows, nil
}

// ApplyCurationRewards persists the computed rows and credits each winner,
// once per cycle. The existence check runs inside the same transaction as
// the writes, so concurrent callers cannot double-award.
func (s *Store) ApplyCurationRewards(ctx context.Context, cycleID string) ([]repository.CurationRewardRow, error) {
	var applied []repository.CurationRewardRow
	err := s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		exists, err := tx.HasCurationRewards(ctx, cycleID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		rows, err := tx.ComputeCurationRewardRows(ctx, cycleID)
		if err != nil || len(rows) == 0 {
			return err
		}
		awardedAt := nowUTC()
		for _, row := range rows {
			reward := models.CurationReward{
				CycleID:      cycleID,
				UserID:       row.UserID,
				Rank:         row.Rank,
				UniqueClicks: row.UniqueClicks,
				RewardChips:  row.RewardChips,
				AwardedAt:    awardedAt,
			}
			if err := tx.db.WithContext(ctx).Create(&reward).Error; err != nil {
				return err
			}
			if err := tx.CreditUserChips(ctx, row.UserID, row.RewardChips, models.LedgerEventCurationReward, &cycleID, map[string]any{
				"rank":          row.Rank,
				"unique_clicks": row.UniqueClicks,
			}); err != nil {
				return err
			}
		}
		applied = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Store) ListCurationLeaderboard(ctx context.Context, limit int) ([]repository.CurationLeaderboardRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []repository.CurationLeaderboardRow
	err := s.db.WithContext(ctx).
		Table("curation_rewards AS cr").
		Select(`cr.user_id AS user_id,
			u.display_name AS display_name,
			SUM(cr.unique_clicks) AS total_clicks,
			SUM(cr.reward_chips) AS total_rewards,
			COUNT(DISTINCT cr.cycle_id) AS cycle_count`).
		Joins("JOIN users u ON u.id = cr.user_id").
		Group("cr.user_id, u.display_name").
		Order("total_rewards DESC, total_clicks DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Job claims -------------------------------------------------------------

// ClaimJobRun atomically records a run marker. The unique (job_name,
// run_key) index makes this a compare-and-insert: exactly one concurrent
// caller wins.
func (s *Store) ClaimJobRun(ctx context.Context, jobName, runKey string, details map[string]any) (bool, error) {
	detailsJSON, err := marshalMetadata(details)
	if err != nil {
		return false, err
	}
	run := models.JobRun{
		ID:      newID("job"),
		JobName: jobName,
		RunKey:  runKey,
		Status:  "DONE",
		Details: detailsJSON,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_name"}, {Name: "run_key"}},
		DoNothing: true,
	}).Create(&run)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
