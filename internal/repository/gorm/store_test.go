package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/config"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Cycle{},
		&models.CandidateLink{},
		&models.Pick{},
		&models.ChipLedgerEntry{},
		&models.CycleResult{},
		&models.CurationReward{},
		&models.ModelPrediction{},
		&models.ClickEvent{},
		&models.JobRun{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(gdb, config.MarketConfig{StartingChips: 100, DailyChips: 10})
}

func TestCreateUserGrantsStartingChipsWithLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "Alice", "alice@example.com", models.AccountTypeHuman)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.CurrentChips != 100 {
		t.Fatalf("chips=%d want=100", user.CurrentChips)
	}
	total, err := store.SumLedgerDeltas(ctx, user.ID)
	if err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	if total != user.CurrentChips {
		t.Fatalf("ledger sum=%d balance=%d, must match", total, user.CurrentChips)
	}
}

func TestCreditUserChipsKeepsBalanceLedgerInvariant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "Bob", "bob@example.com", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, delta := range []int64{25, 0, -10, 7} {
		if err := store.CreditUserChips(ctx, user.ID, delta, "adjustment", nil, nil); err != nil {
			t.Fatalf("credit %d: %v", delta, err)
		}
	}
	refreshed, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	total, err := store.SumLedgerDeltas(ctx, user.ID)
	if err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	if refreshed.CurrentChips != total {
		t.Fatalf("balance=%d ledger sum=%d, must match", refreshed.CurrentChips, total)
	}
	if refreshed.CurrentChips != 122 {
		t.Fatalf("balance=%d want=122", refreshed.CurrentChips)
	}
}

func TestCreditUserChipsUnknownUser(t *testing.T) {
	store := newTestStore(t)
	err := store.CreditUserChips(context.Background(), "usr_missing", 5, "adjustment", nil, nil)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestApplyDailyFaucetAccumulatesMissedDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "Alice", "alice@example.com", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	asOf := time.Now().UTC().AddDate(0, 0, 3).Format(dateLayout)

	credited, err := store.ApplyDailyFaucet(ctx, asOf)
	if err != nil {
		t.Fatalf("faucet: %v", err)
	}
	if credited[alice.ID] != 30 {
		t.Fatalf("credited=%d want=30 (3 missed days)", credited[alice.ID])
	}

	// Second pass at the same date credits nothing.
	credited, err = store.ApplyDailyFaucet(ctx, asOf)
	if err != nil {
		t.Fatalf("faucet rerun: %v", err)
	}
	if len(credited) != 0 {
		t.Fatalf("rerun credited=%v want empty", credited)
	}

	refreshed, _ := store.GetUser(ctx, alice.ID)
	total, _ := store.SumLedgerDeltas(ctx, alice.ID)
	if refreshed.CurrentChips != 130 || total != 130 {
		t.Fatalf("balance=%d ledger=%d want both 130", refreshed.CurrentChips, total)
	}
}

func TestCreateCandidateDedupesOnCanonicalURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.CreateUser(ctx, "Alice", "alice@example.com", "")
	cycle, err := store.CreateCycle(ctx, "2026-02-06")
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}

	first, err := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/a?utm_source=x", "A")
	if err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	dup, err := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/a?utm_campaign=y", "A dup")
	if err != nil {
		t.Fatalf("create dup candidate: %v", err)
	}
	if dup.ID != first.ID {
		t.Fatalf("tracking variants should dedupe: %s vs %s", dup.ID, first.ID)
	}

	other, err := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/b", "B")
	if err != nil {
		t.Fatalf("create other candidate: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("distinct URL must create a distinct candidate")
	}

	candidates, err := store.ListCandidates(ctx, cycle.ID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates=%d want=2", len(candidates))
	}
}

func TestSetRankedPicksValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.CreateUser(ctx, "Alice", "alice@example.com", "")
	cycle, _ := store.CreateCycle(ctx, "2026-02-06")
	otherCycle, _ := store.CreateCycle(ctx, "2026-02-07")

	var ids []string
	for i := 0; i < models.MaxPicksPerCycle+1; i++ {
		candidate, err := store.CreateCandidate(ctx, cycle.ID, user.ID, fmt.Sprintf("https://example.com/%d", i), "")
		if err != nil {
			t.Fatalf("create candidate %d: %v", i, err)
		}
		ids = append(ids, candidate.ID)
	}

	if _, err := store.SetRankedPicks(ctx, cycle.ID, user.ID, ids); !errors.Is(err, repository.ErrTooManyPicks) {
		t.Fatalf("err=%v want ErrTooManyPicks", err)
	}
	if _, err := store.SetRankedPicks(ctx, cycle.ID, user.ID, []string{ids[0], ids[0]}); !errors.Is(err, repository.ErrDuplicatePick) {
		t.Fatalf("err=%v want ErrDuplicatePick", err)
	}
	if _, err := store.SetRankedPicks(ctx, otherCycle.ID, user.ID, []string{ids[0]}); !errors.Is(err, repository.ErrPickOutsideCycle) {
		t.Fatalf("err=%v want ErrPickOutsideCycle", err)
	}
}

func TestSetRankedPicksReplacesWholeSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.CreateUser(ctx, "Alice", "alice@example.com", "")
	cycle, _ := store.CreateCycle(ctx, "2026-02-06")
	c1, _ := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/1", "")
	c2, _ := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/2", "")
	c3, _ := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/3", "")

	if _, err := store.SetRankedPicks(ctx, cycle.ID, user.ID, []string{c1.ID, c2.ID}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	picks, err := store.SetRankedPicks(ctx, cycle.ID, user.ID, []string{c3.ID, c1.ID})
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if len(picks) != 2 {
		t.Fatalf("picks=%d want=2", len(picks))
	}
	if picks[0].CandidateID != c3.ID || picks[0].Rank != 1 {
		t.Fatalf("rank 1 pick=%s rank=%d want candidate=%s rank=1", picks[0].CandidateID, picks[0].Rank, c3.ID)
	}
	if picks[1].CandidateID != c1.ID || picks[1].Rank != 2 {
		t.Fatalf("rank 2 pick=%s rank=%d want candidate=%s rank=2", picks[1].CandidateID, picks[1].Rank, c1.ID)
	}
}

func TestRecordClickDeduplicatesFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.CreateUser(ctx, "Alice", "alice@example.com", "")
	cycle, _ := store.CreateCycle(ctx, "2026-02-06")
	candidate, _ := store.CreateCandidate(ctx, cycle.ID, user.ID, "https://example.com/a", "")

	first, err := store.RecordClick(ctx, candidate.ID, "fp1")
	if err != nil {
		t.Fatalf("record click: %v", err)
	}
	if !first.Counted {
		t.Fatalf("first click should count, got %+v", first)
	}
	second, err := store.RecordClick(ctx, candidate.ID, "fp1")
	if err != nil {
		t.Fatalf("record dup click: %v", err)
	}
	if second.Counted || second.Reason != "duplicate" {
		t.Fatalf("dup click=%+v want counted=false reason=duplicate", second)
	}
}

func TestClaimJobRunExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, err := store.ClaimJobRun(ctx, "daily_faucet", "2026-02-09", nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatalf("first claim must win")
	}
	claimed, err = store.ClaimJobRun(ctx, "daily_faucet", "2026-02-09", nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatalf("second claim must lose")
	}

	// A different key is a fresh claim.
	claimed, err = store.ClaimJobRun(ctx, "daily_faucet", "2026-02-10", nil)
	if err != nil || !claimed {
		t.Fatalf("fresh key claim=%v err=%v want true", claimed, err)
	}
}

func TestClaimJobRunConcurrentSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimJobRun(ctx, "model_run", "cyc_x:2026020912", nil)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners=%d want exactly 1", winners)
	}
}

func TestGetOrCreateAgentUserIsStable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateAgentUser(ctx, "gpt-5.2")
	if err != nil {
		t.Fatalf("create agent user: %v", err)
	}
	if first.AccountType != models.AccountTypeAI {
		t.Fatalf("account type=%s want=AI", first.AccountType)
	}
	second, err := store.GetOrCreateAgentUser(ctx, "gpt-5.2")
	if err != nil {
		t.Fatalf("reuse agent user: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("agent user must be reused: %s vs %s", second.ID, first.ID)
	}
}

func TestChipLeaderboardSegregatesAccountTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	human, _ := store.CreateUser(ctx, "Alice", "alice@example.com", models.AccountTypeHuman)
	agentUser, _ := store.GetOrCreateAgentUser(ctx, "gpt-5.2")
	_ = store.CreditUserChips(ctx, agentUser.ID, 500, "adjustment", nil, nil)

	humans, err := store.ListChipLeaderboard(ctx, 10, models.AccountTypeHuman)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for _, row := range humans {
		if row.UserID == agentUser.ID {
			t.Fatalf("AI user leaked into human leaderboard")
		}
	}
	if len(humans) != 1 || humans[0].UserID != human.ID {
		t.Fatalf("human leaderboard=%+v want only %s", humans, human.ID)
	}

	all, err := store.ListChipLeaderboard(ctx, 10, "")
	if err != nil {
		t.Fatalf("leaderboard all: %v", err)
	}
	if len(all) != 2 || all[0].UserID != agentUser.ID {
		t.Fatalf("unfiltered leaderboard=%+v want agent first", all)
	}
}
