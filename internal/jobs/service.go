// Package jobs wraps every periodic market operation in an exactly-once
// claim. The claim is the sole concurrency primitive: run keys encode each
// job's idempotency granularity, and a lost claim is a structured skip,
// never an error.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/agent"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/market"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

// Job names recorded in the job_runs table.
const (
	JobDailyFaucet     = "daily_faucet"
	JobModelRun        = "model_run"
	JobSyncLinks       = "sync_assorted_links"
	JobCurationRewards = "curation_rewards"
)

// Skip reason codes.
const (
	ReasonAlreadyRan  = "already_ran"
	ReasonNoOpenCycle = "no_open_cycle"
	ReasonNoIngestor  = "ingestor_not_configured"
)

const (
	dateLayout = "2006-01-02"
	hourLayout = "2006010215"
)

// IngestSummary is whatever the external link crawler reports for one sync.
type IngestSummary struct {
	Posts int `json:"posts"`
	Links int `json:"links"`
}

// Ingestor is the ingestion boundary. The crawler itself lives outside this
// engine; the orchestrator only gates and triggers it.
type Ingestor interface {
	Sync(ctx context.Context) (IngestSummary, error)
}

// Outcome is the shared header of every job result.
type Outcome struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
	RunKey  string `json:"run_key,omitempty"`
}

type FaucetOutcome struct {
	Outcome
	Credited map[string]int64 `json:"credited,omitempty"`
}

type ModelRunOutcome struct {
	Outcome
	CycleID string                     `json:"cycle_id,omitempty"`
	Result  map[string]agent.RunResult `json:"result,omitempty"`
}

type IngestOutcome struct {
	Outcome
	Summary IngestSummary `json:"summary"`
}

// CurationCycleOutcome is one cycle's slice of a curation batch. Reason is
// either a skip code or the curation pass's own reason.
type CurationCycleOutcome struct {
	CycleID string                         `json:"cycle_id"`
	Skipped bool                           `json:"skipped"`
	Reason  string                         `json:"reason"`
	Awarded bool                           `json:"awarded"`
	Rows    []repository.CurationRewardRow `json:"rows,omitempty"`
}

type CurationBatchOutcome struct {
	Results []CurationCycleOutcome `json:"results"`
	Count   int                    `json:"count"`
}

type Service struct {
	Repo     repository.Repository
	Market   *market.Service
	Runner   *agent.Runner
	Ingestor Ingestor
	Logger   *zap.Logger

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// claim acquires the run marker unless force bypasses the check. A forced
// run still leaves any existing marker in place, so a later un-forced run
// at the same key stays skipped.
func (s *Service) claim(ctx context.Context, jobName, runKey string, force bool, details map[string]any) (bool, error) {
	if force {
		return true, nil
	}
	return s.Repo.ClaimJobRun(ctx, jobName, runKey, details)
}

// RunDailyFaucet credits the daily chip allowance, once per calendar day.
// An empty asOfDate means today.
func (s *Service) RunDailyFaucet(ctx context.Context, asOfDate string, force bool) (FaucetOutcome, error) {
	if asOfDate == "" {
		asOfDate = s.now().Format(dateLayout)
	}
	runKey := asOfDate
	claimed, err := s.claim(ctx, JobDailyFaucet, runKey, force, map[string]any{"as_of_date": asOfDate})
	if err != nil {
		return FaucetOutcome{}, err
	}
	if !claimed {
		return FaucetOutcome{Outcome: Outcome{Skipped: true, Reason: ReasonAlreadyRan, RunKey: runKey}}, nil
	}

	credited, err := s.Repo.ApplyDailyFaucet(ctx, asOfDate)
	if err != nil {
		return FaucetOutcome{}, err
	}
	s.logRun(JobDailyFaucet, runKey, zap.Int("users_credited", len(credited)))
	return FaucetOutcome{
		Outcome:  Outcome{RunKey: runKey},
		Credited: credited,
	}, nil
}

// RunModels executes the model agents for a cycle, at most once per cycle
// per hour so the agents can re-score as new candidates arrive. An empty
// cycleID targets the open cycle.
func (s *Service) RunModels(ctx context.Context, cycleID string, force bool) (ModelRunOutcome, error) {
	var cycle *models.Cycle
	var err error
	if cycleID != "" {
		cycle, err = s.Repo.GetCycle(ctx, cycleID)
	} else {
		cycle, err = s.Repo.GetOpenCycle(ctx)
	}
	if err != nil {
		return ModelRunOutcome{}, err
	}
	if cycle == nil {
		return ModelRunOutcome{Outcome: Outcome{Skipped: true, Reason: ReasonNoOpenCycle}}, nil
	}

	runKey := cycle.ID + ":" + s.now().Format(hourLayout)
	claimed, err := s.claim(ctx, JobModelRun, runKey, force, map[string]any{"cycle_id": cycle.ID})
	if err != nil {
		return ModelRunOutcome{}, err
	}
	if !claimed {
		return ModelRunOutcome{Outcome: Outcome{Skipped: true, Reason: ReasonAlreadyRan, RunKey: runKey}}, nil
	}

	result, err := s.Runner.RunCycle(ctx, cycle.ID)
	if err != nil {
		return ModelRunOutcome{}, err
	}
	s.logRun(JobModelRun, runKey, zap.String("cycle_id", cycle.ID), zap.Int("models", len(result)))
	return ModelRunOutcome{
		Outcome: Outcome{RunKey: runKey},
		CycleID: cycle.ID,
		Result:  result,
	}, nil
}

// SyncLinks triggers the external crawler, at most once per hour globally.
// Without a configured ingestor the job is a structured skip.
func (s *Service) SyncLinks(ctx context.Context, force bool) (IngestOutcome, error) {
	if s.Ingestor == nil {
		return IngestOutcome{Outcome: Outcome{Skipped: true, Reason: ReasonNoIngestor}}, nil
	}
	runKey := s.now().Format(hourLayout)
	claimed, err := s.claim(ctx, JobSyncLinks, runKey, force, nil)
	if err != nil {
		return IngestOutcome{}, err
	}
	if !claimed {
		return IngestOutcome{Outcome: Outcome{Skipped: true, Reason: ReasonAlreadyRan, RunKey: runKey}}, nil
	}

	summary, err := s.Ingestor.Sync(ctx)
	if err != nil {
		return IngestOutcome{}, err
	}
	s.logRun(JobSyncLinks, runKey, zap.Int("posts", summary.Posts), zap.Int("links", summary.Links))
	return IngestOutcome{
		Outcome: Outcome{RunKey: runKey},
		Summary: summary,
	}, nil
}

// RunCurationRewards applies the curation pass, once ever per cycle. An
// empty cycleID sweeps every settled cycle.
func (s *Service) RunCurationRewards(ctx context.Context, cycleID string, force bool) (CurationBatchOutcome, error) {
	var targets []models.Cycle
	if cycleID != "" {
		cycle, err := s.Repo.GetCycle(ctx, cycleID)
		if err != nil {
			return CurationBatchOutcome{}, err
		}
		targets = append(targets, *cycle)
	} else {
		cycles, err := s.Repo.ListCycles(ctx, 200)
		if err != nil {
			return CurationBatchOutcome{}, err
		}
		for _, cycle := range cycles {
			if cycle.Status == models.CycleStatusSettled {
				targets = append(targets, cycle)
			}
		}
	}

	results := make([]CurationCycleOutcome, 0, len(targets))
	for _, cycle := range targets {
		claimed, err := s.claim(ctx, JobCurationRewards, cycle.ID, force, nil)
		if err != nil {
			return CurationBatchOutcome{}, err
		}
		if !claimed {
			results = append(results, CurationCycleOutcome{
				CycleID: cycle.ID,
				Skipped: true,
				Reason:  ReasonAlreadyRan,
			})
			continue
		}
		outcome, err := s.Market.ApplyCurationRewards(ctx, cycle.ID, force)
		if err != nil {
			return CurationBatchOutcome{}, err
		}
		results = append(results, CurationCycleOutcome{
			CycleID: cycle.ID,
			Reason:  outcome.Reason,
			Awarded: outcome.Awarded,
			Rows:    outcome.Rows,
		})
	}
	return CurationBatchOutcome{Results: results, Count: len(results)}, nil
}

func (s *Service) logRun(jobName, runKey string, fields ...zap.Field) {
	if s.Logger == nil {
		return
	}
	fields = append([]zap.Field{zap.String("job", jobName), zap.String("run_key", runKey)}, fields...)
	s.Logger.Info("job executed", fields...)
}
