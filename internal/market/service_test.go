package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/config"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
	gormrepository "github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository/gorm"
)

func newTestService(t *testing.T) (*Service, repository.Repository) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
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
	repo := gormrepository.New(gdb, config.MarketConfig{StartingChips: 100, DailyChips: 10})
	return &Service{Repo: repo}, repo
}

type fixture struct {
	cycle      *models.Cycle
	users      []*models.User
	candidates []*models.CandidateLink
}

func seedCycle(t *testing.T, repo repository.Repository, userCount, candidateCount int) fixture {
	t.Helper()
	ctx := context.Background()
	cycle, err := repo.CreateCycle(ctx, "2026-02-06")
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	fx := fixture{cycle: cycle}
	for i := 0; i < userCount; i++ {
		user, err := repo.CreateUser(ctx, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i), "")
		if err != nil {
			t.Fatalf("create user %d: %v", i, err)
		}
		fx.users = append(fx.users, user)
	}
	for i := 0; i < candidateCount; i++ {
		candidate, err := repo.CreateCandidate(ctx, cycle.ID, fx.users[0].ID,
			fmt.Sprintf("https://example.com/story-%d", i), fmt.Sprintf("Story %d", i))
		if err != nil {
			t.Fatalf("create candidate %d: %v", i, err)
		}
		fx.candidates = append(fx.candidates, candidate)
	}
	return fx
}

func TestProbabilitiesNormalizeToOne(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	fx := seedCycle(t, repo, 2, 3)
	c1, c2, c3 := fx.candidates[0], fx.candidates[1], fx.candidates[2]

	// Both users put c1 first (weight 10 each); second picks split.
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[0].ID, []string{c1.ID, c2.ID}); err != nil {
		t.Fatalf("picks user0: %v", err)
	}
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[1].ID, []string{c1.ID, c3.ID}); err != nil {
		t.Fatalf("picks user1: %v", err)
	}

	probs, err := svc.Probabilities(ctx, fx.cycle.ID)
	if err != nil {
		t.Fatalf("probabilities: %v", err)
	}
	if len(probs) != 3 {
		t.Fatalf("probs=%d want=3", len(probs))
	}
	if probs[0].CandidateID != c1.ID || probs[0].RankWeightScore != 20 {
		t.Fatalf("top=%+v want candidate=%s score=20", probs[0], c1.ID)
	}
	if got, want := probs[0].MarketProbability, 20.0/38.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("top probability=%v want=%v", got, want)
	}
	var sum float64
	for _, p := range probs {
		sum += p.MarketProbability
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("probability sum=%v want=1", sum)
	}
}

func TestProbabilitiesNoPicksAllZero(t *testing.T) {
	svc, repo := newTestService(t)
	fx := seedCycle(t, repo, 1, 2)

	probs, err := svc.Probabilities(context.Background(), fx.cycle.ID)
	if err != nil {
		t.Fatalf("probabilities: %v", err)
	}
	if len(probs) != 2 {
		t.Fatalf("probs=%d want=2", len(probs))
	}
	for _, p := range probs {
		if p.MarketProbability != 0 || p.RankWeightScore != 0 {
			t.Fatalf("unpicked candidate got weight: %+v", p)
		}
	}
}

func TestSettleCreditsWinnersAndNeverDebits(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	fx := seedCycle(t, repo, 2, 3)
	winner, loser := fx.candidates[0], fx.candidates[1]

	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[0].ID, []string{winner.ID, loser.ID}); err != nil {
		t.Fatalf("picks user0: %v", err)
	}
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[1].ID, []string{loser.ID}); err != nil {
		t.Fatalf("picks user1: %v", err)
	}

	result, err := svc.Settle(ctx, fx.cycle.ID, []string{winner.OriginalURL})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.WinnerCount != 1 || result.WinnerCandidateIDs[0] != winner.ID {
		t.Fatalf("result=%+v want single winner %s", result, winner.ID)
	}

	hit, err := repo.GetUser(ctx, fx.users[0].ID)
	if err != nil {
		t.Fatalf("get user0: %v", err)
	}
	if hit.CurrentChips != 120 {
		t.Fatalf("winner chips=%d want=120 (100 + rank-1 reward 20)", hit.CurrentChips)
	}

	// Wrong picks cost nothing.
	miss, err := repo.GetUser(ctx, fx.users[1].ID)
	if err != nil {
		t.Fatalf("get user1: %v", err)
	}
	if miss.CurrentChips != 100 {
		t.Fatalf("loser chips=%d want=100", miss.CurrentChips)
	}

	cycle, err := repo.GetCycle(ctx, fx.cycle.ID)
	if err != nil {
		t.Fatalf("get cycle: %v", err)
	}
	if cycle.Status != models.CycleStatusSettled || cycle.ClosedAt == nil {
		t.Fatalf("cycle=%+v want SETTLED with closed_at", cycle)
	}
}

func TestSettleRejectsSecondSettlement(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	fx := seedCycle(t, repo, 1, 1)

	if _, err := svc.Settle(ctx, fx.cycle.ID, []string{fx.candidates[0].OriginalURL}); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	_, err := svc.Settle(ctx, fx.cycle.ID, []string{fx.candidates[0].OriginalURL})
	if !errors.Is(err, ErrCycleSettled) {
		t.Fatalf("err=%v want ErrCycleSettled", err)
	}

	user, _ := repo.GetUser(ctx, fx.users[0].ID)
	total, _ := repo.SumLedgerDeltas(ctx, fx.users[0].ID)
	if user.CurrentChips != total {
		t.Fatalf("balance=%d ledger=%d, must match after rejected resettle", user.CurrentChips, total)
	}
}

func TestSettleDropsUnmatchedWinnerURLs(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	fx := seedCycle(t, repo, 1, 1)

	result, err := svc.Settle(ctx, fx.cycle.ID, []string{
		"https://example.com/story-0?utm_source=newsletter", // tracking variant of the candidate
		"https://nowhere.example.net/unknown",
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.WinnerCount != 1 || result.WinnerCandidateIDs[0] != fx.candidates[0].ID {
		t.Fatalf("result=%+v want only the matched candidate", result)
	}

	winnerIDs, err := repo.ListWinnerCandidateIDs(ctx, fx.cycle.ID)
	if err != nil {
		t.Fatalf("list winners: %v", err)
	}
	if len(winnerIDs) != 1 || winnerIDs[0] != fx.candidates[0].ID {
		t.Fatalf("persisted winners=%v want=[%s]", winnerIDs, fx.candidates[0].ID)
	}
}

func TestSettleCompetitionRanking(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	fx := seedCycle(t, repo, 3, 2)
	winner := fx.candidates[0]

	// Two users hit at rank 1 (reward 20), one hits at rank 2 (reward 18).
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[0].ID, []string{winner.ID}); err != nil {
		t.Fatalf("picks user0: %v", err)
	}
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[1].ID, []string{winner.ID}); err != nil {
		t.Fatalf("picks user1: %v", err)
	}
	if _, err := svc.SetRankedPicks(ctx, fx.cycle.ID, fx.users[2].ID, []string{fx.candidates[1].ID, winner.ID}); err != nil {
		t.Fatalf("picks user2: %v", err)
	}

	result, err := svc.Settle(ctx, fx.cycle.ID, []string{winner.OriginalURL})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(result.Ranking) != 3 {
		t.Fatalf("ranking=%d rows want=3", len(result.Ranking))
	}
	// Tied leaders share rank 1; the next distinct row is rank 3, not 2.
	wantRanks := []int{1, 1, 3}
	wantRewards := []int64{20, 20, 18}
	for i, entry := range result.Ranking {
		if entry.Rank != wantRanks[i] || entry.RewardChips != wantRewards[i] {
			t.Fatalf("ranking[%d]=%+v want rank=%d reward=%d", i, entry, wantRanks[i], wantRewards[i])
		}
	}
}

func TestCurationRewardsTieSplitAndIdempotence(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	cycle, err := repo.CreateCycle(ctx, "2026-02-06")
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	var submitters []*models.User
	var candidates []*models.CandidateLink
	for i := 0; i < 3; i++ {
		user, err := repo.CreateUser(ctx, fmt.Sprintf("curator%d", i), fmt.Sprintf("curator%d@example.com", i), "")
		if err != nil {
			t.Fatalf("create user %d: %v", i, err)
		}
		submitters = append(submitters, user)
		candidate, err := repo.CreateCandidate(ctx, cycle.ID, user.ID,
			fmt.Sprintf("https://example.com/curated-%d", i), "")
		if err != nil {
			t.Fatalf("create candidate %d: %v", i, err)
		}
		candidates = append(candidates, candidate)
	}

	// Unique clicks per submitter: 5, 5, 3.
	for i, clicks := range []int{5, 5, 3} {
		for c := 0; c < clicks; c++ {
			outcome, err := repo.RecordClick(ctx, candidates[i].ID, fmt.Sprintf("fp-%d-%d", i, c))
			if err != nil || !outcome.Counted {
				t.Fatalf("click %d/%d: outcome=%+v err=%v", i, c, outcome, err)
			}
		}
	}

	if _, err := svc.Settle(ctx, cycle.ID, nil); err != nil {
		t.Fatalf("settle: %v", err)
	}

	outcome, err := svc.ApplyCurationRewards(ctx, cycle.ID, true)
	if err != nil {
		t.Fatalf("curation: %v", err)
	}
	if !outcome.Awarded || outcome.Reason != CurationReasonOK {
		t.Fatalf("outcome=%+v want awarded ok", outcome)
	}
	if len(outcome.Rows) != 3 {
		t.Fatalf("rows=%d want=3", len(outcome.Rows))
	}
	// Positions 1-2 tie on 5 clicks: pool 40+20 splits to 30 each, both at
	// rank 1. Third keeps the rank-3 reward of 10.
	byUser := map[string]repository.CurationRewardRow{}
	for _, row := range outcome.Rows {
		byUser[row.UserID] = row
	}
	for i, want := range []struct {
		rank   int
		reward int64
	}{{1, 30}, {1, 30}, {3, 10}} {
		row := byUser[submitters[i].ID]
		if row.Rank != want.rank || row.RewardChips != want.reward {
			t.Fatalf("submitter %d row=%+v want rank=%d reward=%d", i, row, want.rank, want.reward)
		}
	}
	for i, wantChips := range []int64{130, 130, 110} {
		user, _ := repo.GetUser(ctx, submitters[i].ID)
		if user.CurrentChips != wantChips {
			t.Fatalf("submitter %d chips=%d want=%d", i, user.CurrentChips, wantChips)
		}
	}

	// The pass is idempotent per cycle.
	rerun, err := svc.ApplyCurationRewards(ctx, cycle.ID, true)
	if err != nil {
		t.Fatalf("curation rerun: %v", err)
	}
	if rerun.Awarded || rerun.Reason != CurationReasonNoneOrAlready {
		t.Fatalf("rerun=%+v want skip none_or_already_awarded", rerun)
	}
	user, _ := repo.GetUser(ctx, submitters[0].ID)
	if user.CurrentChips != 130 {
		t.Fatalf("rerun changed balance: %d", user.CurrentChips)
	}
}

func TestCurationRewardsGating(t *testing.T) {
	svc, repo := newTestService(t)
	svc.CurationMinAgeHours = 24
	ctx := context.Background()
	fx := seedCycle(t, repo, 1, 1)

	outcome, err := svc.ApplyCurationRewards(ctx, fx.cycle.ID, false)
	if err != nil {
		t.Fatalf("curation on open cycle: %v", err)
	}
	if outcome.Awarded || outcome.Reason != CurationReasonNotSettled {
		t.Fatalf("outcome=%+v want cycle_not_settled", outcome)
	}

	if _, err := svc.Settle(ctx, fx.cycle.ID, nil); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := repo.RecordClick(ctx, fx.candidates[0].ID, "fp"); err != nil {
		t.Fatalf("click: %v", err)
	}

	// Freshly settled: inside the wait window.
	outcome, err = svc.ApplyCurationRewards(ctx, fx.cycle.ID, false)
	if err != nil {
		t.Fatalf("curation in window: %v", err)
	}
	if outcome.Awarded || outcome.Reason != CurationReasonWaitWindow {
		t.Fatalf("outcome=%+v want wait_window", outcome)
	}

	// Force bypasses the window.
	outcome, err = svc.ApplyCurationRewards(ctx, fx.cycle.ID, true)
	if err != nil {
		t.Fatalf("forced curation: %v", err)
	}
	if !outcome.Awarded {
		t.Fatalf("forced outcome=%+v want awarded", outcome)
	}
}
