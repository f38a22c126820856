// Package expansion orchestrates an expansion-intelligence run: discover
// candidate sites, profile their markets, score them against the rubric,
// and validate the survivors, persisting phases and candidates as it goes.
package expansion

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forkline/expansion-cli/internal/config"
	"github.com/forkline/expansion-cli/internal/cost"
	"github.com/forkline/expansion-cli/internal/model"
	"github.com/forkline/expansion-cli/internal/store"
	"github.com/forkline/expansion-cli/internal/telemetry"
)

// Discoverer proposes candidate sites for a region.
type Discoverer interface {
	Discover(ctx context.Context, region model.Region, existing []model.StoreLocation) ([]model.Candidate, error)
}

// Analyzer profiles the market around a candidate.
type Analyzer interface {
	Analyze(ctx context.Context, region model.Region, cand model.Candidate, kpiContext string) (*model.MarketProfile, error)
}

// Scorer rates an analyzed candidate.
type Scorer interface {
	Score(ctx context.Context, region model.Region, cand model.Candidate) (*model.StrategicScore, error)
}

// Validator issues the final verdict for a scored candidate.
type Validator interface {
	Validate(ctx context.Context, region model.Region, cand model.Candidate, existing []model.StoreLocation) (*model.ViabilityVerdict, error)
}

// Runner executes expansion runs end to end.
type Runner struct {
	cfg       *config.Config
	store     store.Store
	discovery Discoverer
	market    Analyzer
	scoring   Scorer
	viability Validator
	monitor   *cost.Monitor
}

// New creates a Runner with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	disc Discoverer,
	mkt Analyzer,
	sc Scorer,
	via Validator,
	monitor *cost.Monitor,
) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		discovery: disc,
		market:    mkt,
		scoring:   sc,
		viability: via,
		monitor:   monitor,
	}
}

// Run executes the full pipeline for one region and returns the completed
// run record. Per-candidate failures in the analyze, score, and validate
// phases mark the candidate filtered instead of failing the run; only a
// failed discovery aborts it.
func (r *Runner) Run(ctx context.Context, region model.Region) (*model.Run, error) {
	log := zap.L().With(zap.String("tenant_id", region.TenantID), zap.String("region", region.Name))
	log.Info("expansion: starting run")

	runStart := time.Now()
	startUSD, startHits := r.spend()

	run, err := r.store.CreateRun(ctx, region)
	if err != nil {
		return nil, eris.Wrap(err, "expansion: create run")
	}

	setStatus := func(status model.RunStatus) {
		if statusErr := r.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("expansion: failed to update status", zap.Error(statusErr))
		}
	}

	var phasesMu sync.Mutex
	var phases []model.PhaseResult
	trackPhase := func(name string, fn func() (int, error)) error {
		phase, phaseErr := r.store.CreatePhase(ctx, run.ID, name)
		if phaseErr != nil {
			log.Warn("expansion: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
		}

		usdBefore, _ := r.spend()
		start := time.Now()
		items, fnErr := fn()
		duration := time.Since(start).Milliseconds()
		usdAfter, _ := r.spend()

		result := model.PhaseResult{
			Name:     name,
			Duration: duration,
			CostUSD:  usdAfter - usdBefore,
			Items:    items,
		}
		if fnErr != nil {
			result.Status = model.PhaseStatusFailed
			result.Error = fnErr.Error()
			log.Error("expansion: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			result.Status = model.PhaseStatusComplete
			log.Info("expansion: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Int("items", items),
				zap.Float64("cost_usd", result.CostUSD),
			)
		}

		if phase != nil {
			_ = r.store.CompletePhase(ctx, phase.ID, &result)
		}
		if result.CostUSD > 0 {
			if costErr := r.store.RecordCost(ctx, run.ID, name, "", "", result.CostUSD, false); costErr != nil {
				log.Warn("expansion: failed to record phase cost", zap.Error(costErr))
			}
		}

		phasesMu.Lock()
		phases = append(phases, result)
		phasesMu.Unlock()
		return fnErr
	}

	fail := func(err error) (*model.Run, error) {
		setStatus(model.RunStatusFailed)
		run.Status = model.RunStatusFailed
		return run, err
	}

	// Existing stores and their telemetry feed every later phase.
	existing, err := r.store.ListStoreLocations(ctx, region.TenantID)
	if err != nil {
		return fail(eris.Wrap(err, "expansion: load store locations"))
	}
	kpis, err := r.store.ListStoreKPIs(ctx, region.TenantID)
	if err != nil {
		return fail(eris.Wrap(err, "expansion: load store KPIs"))
	}
	kpiContext := telemetry.PromptContext(kpis)

	// ===== Phase 1: Discovery =====
	setStatus(model.RunStatusDiscovering)

	var candidates []model.Candidate
	err = trackPhase("discover", func() (int, error) {
		found, discErr := r.discovery.Discover(ctx, region, existing)
		if discErr != nil {
			return 0, discErr
		}
		candidates = found
		return len(active(candidates)), nil
	})
	if err != nil {
		return fail(eris.Wrap(err, "expansion: discovery"))
	}
	if len(active(candidates)) == 0 {
		if insErr := r.store.InsertCandidates(ctx, run.ID, candidates); insErr != nil {
			log.Warn("expansion: failed to persist candidates", zap.Error(insErr))
		}
		return fail(eris.New("expansion: no candidates survived discovery"))
	}

	// ===== Phase 2: Market analysis =====
	setStatus(model.RunStatusAnalyzing)

	_ = trackPhase("analyze", func() (int, error) {
		return r.fanOut(ctx, candidates, func(ctx context.Context, cand *model.Candidate) error {
			profile, anErr := r.market.Analyze(ctx, region, *cand, kpiContext)
			if anErr != nil {
				return anErr
			}
			cand.Market = profile
			return nil
		}, "analysis failed")
	})

	// ===== Phase 3: Strategic scoring =====
	setStatus(model.RunStatusScoring)

	_ = trackPhase("score", func() (int, error) {
		return r.fanOut(ctx, candidates, func(ctx context.Context, cand *model.Candidate) error {
			if cand.Market == nil {
				return eris.New("no market profile")
			}
			score, scErr := r.scoring.Score(ctx, region, *cand)
			if scErr != nil {
				return scErr
			}
			cand.Score = score
			return nil
		}, "scoring failed")
	})

	// ===== Phase 4: Viability validation =====
	setStatus(model.RunStatusValidating)

	_ = trackPhase("validate", func() (int, error) {
		return r.fanOut(ctx, candidates, func(ctx context.Context, cand *model.Candidate) error {
			if cand.Score == nil {
				return eris.New("no score")
			}
			verdict, vErr := r.viability.Validate(ctx, region, *cand, existing)
			if vErr != nil {
				return vErr
			}
			cand.Verdict = verdict
			return nil
		}, "validation failed")
	})

	if ctx.Err() != nil {
		return fail(eris.Wrap(ctx.Err(), "expansion: run canceled"))
	}

	if err := r.store.InsertCandidates(ctx, run.ID, candidates); err != nil {
		return fail(eris.Wrap(err, "expansion: persist candidates"))
	}

	// Finalize.
	endUSD, endHits := r.spend()
	result := &model.RunResult{
		CostUSD:             endUSD - startUSD,
		CacheHits:           endHits - startHits,
		Phases:              phases,
		TotalDurationMillis: time.Since(runStart).Milliseconds(),
	}
	for _, c := range candidates {
		if c.Filtered {
			continue
		}
		result.CandidatesFound++
		if c.Score != nil {
			result.CandidatesScored++
		}
		if c.Verdict != nil && c.Verdict.Verdict == model.VerdictGo {
			result.CandidatesViable++
		}
	}

	if err := r.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		log.Warn("expansion: failed to save run result", zap.Error(err))
	}
	setStatus(model.RunStatusComplete)

	log.Info("expansion: run complete",
		zap.String("run_id", run.ID),
		zap.Int("found", result.CandidatesFound),
		zap.Int("scored", result.CandidatesScored),
		zap.Int("viable", result.CandidatesViable),
		zap.Float64("cost_usd", result.CostUSD),
		zap.Int("cache_hits", result.CacheHits),
	)

	run.Status = model.RunStatusComplete
	run.Result = result
	return run, nil
}

// fanOut applies fn to every unfiltered candidate in parallel. A failed
// candidate is marked filtered with the failure reason; fanOut itself
// fails only when every candidate fails.
func (r *Runner) fanOut(ctx context.Context, candidates []model.Candidate, fn func(context.Context, *model.Candidate) error, failPrefix string) (int, error) {
	limit := r.cfg.Concurrency.MaxParallel
	if limit <= 0 {
		limit = 4
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	succeeded, attempted := 0, 0

	for i := range candidates {
		if candidates[i].Filtered {
			continue
		}
		attempted++
		cand := &candidates[i]
		g.Go(func() error {
			if err := fn(gCtx, cand); err != nil {
				mu.Lock()
				cand.Filtered = true
				cand.FilterReason = failPrefix + ": " + err.Error()
				mu.Unlock()
				zap.L().Warn("expansion: candidate dropped",
					zap.String("candidate", cand.Name),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if attempted > 0 && succeeded == 0 {
		return 0, eris.New("expansion: all candidates failed")
	}
	return succeeded, nil
}

// active returns the unfiltered candidates.
func active(candidates []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Filtered {
			out = append(out, c)
		}
	}
	return out
}

// spend reads the monitor's accumulated totals. Zero when no monitor is
// attached.
func (r *Runner) spend() (usd float64, cacheHits int) {
	if r.monitor == nil {
		return 0, 0
	}
	usd = r.monitor.TotalUSD()
	for _, st := range r.monitor.Snapshot() {
		cacheHits += st.CacheHits
	}
	return usd, cacheHits
}
