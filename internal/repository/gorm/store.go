// Package gormrepository implements the repository contract on gorm.
// Postgres in production, sqlite in tests; every query goes through the
// dialect-neutral gorm API so both engines behave identically.
package gormrepository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/config"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

const dateLayout = "2006-01-02"

type Store struct {
	db  *gorm.DB
	cfg config.MarketConfig
}

func New(db *gorm.DB, cfg config.MarketConfig) *Store {
	return &Store{db: db, cfg: cfg}
}

func (s *Store) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, cfg: s.cfg})
	})
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func marshalMetadata(metadata map[string]any) (datatypes.JSON, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// --- Users and chips --------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, displayName, email, accountType string) (*models.User, error) {
	if accountType == "" {
		accountType = models.AccountTypeHuman
	}
	user := models.User{
		ID:                  newID("usr"),
		DisplayName:         displayName,
		Email:               email,
		AccountType:         accountType,
		CurrentChips:        0,
		LastDailyCreditDate: nowUTC().Format(dateLayout),
	}
	err := s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		if err := tx.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		return tx.CreditUserChips(ctx, user.ID, tx.cfg.StartingChips, models.LedgerEventSignupBonus, nil, map[string]any{
			"account_type": accountType,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user email %s: %w", email, repository.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetOrCreateAgentUser(ctx context.Context, modelID string) (*models.User, error) {
	email := "model:" + modelID + "@local"
	existing, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.CreateUser(ctx, modelID, email, models.AccountTypeAI)
}

// CreditUserChips mutates the balance and writes the paired ledger entry in
// one transaction. No other code path may touch current_chips.
func (s *Store) CreditUserChips(ctx context.Context, userID string, delta int64, eventType string, cycleID *string, metadata map[string]any) error {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	return s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		if delta != 0 {
			res := tx.db.WithContext(ctx).Model(&models.User{}).
				Where("id = ?", userID).
				UpdateColumn("current_chips", gorm.Expr("current_chips + ?", delta))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
			}
		}
		entry := models.ChipLedgerEntry{
			ID:         newID("led"),
			UserID:     userID,
			CycleID:    cycleID,
			EventType:  eventType,
			ChipsDelta: delta,
			Metadata:   meta,
		}
		return tx.db.WithContext(ctx).Create(&entry).Error
	})
}

// ApplyDailyFaucet credits every user the daily chip amount for each
// calendar day since their last credit, advancing the watermark. Users
// already credited through asOfDate are untouched.
func (s *Store) ApplyDailyFaucet(ctx context.Context, asOfDate string) (map[string]int64, error) {
	asOf, err := time.Parse(dateLayout, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("parse faucet date %q: %w", asOfDate, err)
	}

	credited := map[string]int64{}
	err = s.InTx(ctx, func(r repository.Repository) error {
		tx := r.(*Store)
		var users []models.User
		if err := tx.db.WithContext(ctx).Find(&users).Error; err != nil {
			return err
		}
		for _, user := range users {
			last, err := time.Parse(dateLayout, user.LastDailyCreditDate)
			if err != nil {
				return fmt.Errorf("user %s last credit date %q: %w", user.ID, user.LastDailyCreditDate, err)
			}
			missedDays := int64(asOf.Sub(last).Hours() / 24)
			if missedDays <= 0 {
				continue
			}
			chips := missedDays * tx.cfg.DailyChips
			if err := tx.db.WithContext(ctx).Model(&models.User{}).
				Where("id = ?", user.ID).
				UpdateColumn("last_daily_credit_date", asOfDate).Error; err != nil {
				return err
			}
			if err := tx.CreditUserChips(ctx, user.ID, chips, models.LedgerEventDailyFaucet, nil, map[string]any{
				"missed_days": missedDays,
			}); err != nil {
				return err
			}
			credited[user.ID] = chips
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

func (s *Store) SumLedgerDeltas(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.ChipLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(chips_delta), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Store) ListChipLeaderboard(ctx context.Context, limit int, accountType string) ([]repository.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&models.User{}).
		Select("id AS user_id, display_name, account_type, current_chips")
	if accountType != "" {
		query = query.Where("account_type = ?", accountType)
	}
	var rows []repository.LeaderboardRow
	if err := query.Order("current_chips DESC").Order("display_name ASC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
