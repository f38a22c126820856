package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/concurrency"
	"github.com/forkline/expansion-cli/internal/config"
	"github.com/forkline/expansion-cli/internal/cost"
	"github.com/forkline/expansion-cli/internal/discovery"
	"github.com/forkline/expansion-cli/internal/expansion"
	"github.com/forkline/expansion-cli/internal/geo"
	"github.com/forkline/expansion-cli/internal/llm"
	"github.com/forkline/expansion-cli/internal/market"
	"github.com/forkline/expansion-cli/internal/resilience"
	"github.com/forkline/expansion-cli/internal/scoring"
	"github.com/forkline/expansion-cli/internal/store"
	"github.com/forkline/expansion-cli/internal/viability"
	anthropicpkg "github.com/forkline/expansion-cli/pkg/anthropic"
	"github.com/forkline/expansion-cli/pkg/notion"
	openaipkg "github.com/forkline/expansion-cli/pkg/openai"
)

// runnerEnv holds the initialized store, clients, and the run orchestrator
// needed by the run/report/serve commands.
type runnerEnv struct {
	Store   store.Store
	Runner  *expansion.Runner
	Monitor *cost.Monitor
	Notion  notion.Client // nil when Notion is not configured
}

// Close releases resources held by the environment.
func (e *runnerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "expansion.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRunner sets up the store, the LLM pipeline with its providers, and
// the domain services. Callers should defer env.Close().
func initRunner(ctx context.Context) (*runnerEnv, error) {
	if cfg.OpenAI.Key == "" {
		return nil, eris.New("openai key is required (EXPANSION_OPENAI_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rates := cost.DefaultRates()
	applyPricingOverrides(&rates)
	monitor := cost.NewMonitor(cost.NewCalculator(rates), cfg.Budget.RunAlertUSD)

	primary := llm.NewOpenAIProvider(
		openaipkg.NewClient(cfg.OpenAI.Key, openaipkg.WithBaseURL(cfg.OpenAI.BaseURL)),
		cfg.OpenAI.Model,
	)

	var fallback llm.Provider
	if cfg.Anthropic.Enabled && cfg.Anthropic.Key != "" {
		fallback = llm.NewAnthropicProvider(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		zap.L().Info("anthropic fallback enabled", zap.String("model", cfg.Anthropic.Model))
	}

	var cache llm.Cache
	if !cfg.Cache.Disabled {
		cache = st
	}

	// Both pipelines share the limiter, cache, and monitor so the
	// concurrency ceiling and cost accounting span every call.
	limiter := concurrency.New(cfg.Concurrency.MaxParallel, cfg.Concurrency.RequestsPerMinute)
	timeouts := resilience.NewTimeouts(map[resilience.OpType]time.Duration{
		resilience.OpDiscovery:  time.Duration(cfg.Timeouts.DiscoverySecs) * time.Second,
		resilience.OpAnalysis:   time.Duration(cfg.Timeouts.AnalysisSecs) * time.Second,
		resilience.OpScoring:    time.Duration(cfg.Timeouts.ScoringSecs) * time.Second,
		resilience.OpValidation: time.Duration(cfg.Timeouts.ValidationSecs) * time.Second,
	})

	newPipe := func(p llm.Provider) *llm.Pipeline {
		return llm.NewPipeline(llm.Options{
			Primary:  p,
			Fallback: fallback,
			Cache:    cache,
			CacheTTL: time.Duration(cfg.Cache.TTLHours) * time.Hour,
			Limiter:  limiter,
			Timeouts: timeouts,
			Monitor:  monitor,
		})
	}

	pipe := newPipe(primary)

	// Market analysis and scoring fan out across every candidate, so they
	// run on the cheaper mini model when one is configured.
	analysisPipe := pipe
	if m := analysisModel(cfg.OpenAI); m != cfg.OpenAI.Model {
		analysisPipe = newPipe(llm.NewOpenAIProvider(
			openaipkg.NewClient(cfg.OpenAI.Key, openaipkg.WithBaseURL(cfg.OpenAI.BaseURL)),
			m,
		))
		zap.L().Info("mini model enabled for analysis and scoring", zap.String("model", m))
	}

	var boundary *geo.Boundary
	if cfg.Discovery.TradeAreaShp != "" {
		boundaries, shpErr := geo.LoadBoundaries(cfg.Discovery.TradeAreaShp, "NAME")
		if shpErr != nil {
			zap.L().Warn("trade area shapefile not loaded, containment filter disabled", zap.Error(shpErr))
		} else if len(boundaries) > 0 {
			boundary = &boundaries[0]
			zap.L().Info("trade area loaded", zap.String("name", boundary.Name))
		}
	}

	rubric := scoring.DefaultRubric()
	if cfg.Scoring.RubricPath != "" {
		r, rubErr := scoring.LoadRubric(cfg.Scoring.RubricPath)
		if rubErr != nil {
			zap.L().Warn("rubric not loaded, using default weights", zap.Error(rubErr))
		} else {
			rubric = r
		}
	}

	var notionClient notion.Client
	if cfg.Notion.Token != "" && cfg.Notion.ReportDB != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}

	runner := expansion.New(
		cfg,
		st,
		discovery.New(pipe, cfg.Discovery, boundary),
		market.New(analysisPipe),
		scoring.New(analysisPipe, rubric),
		viability.New(pipe, cfg.Viability),
		monitor,
	)

	return &runnerEnv{
		Store:   st,
		Runner:  runner,
		Monitor: monitor,
		Notion:  notionClient,
	}, nil
}

// analysisModel picks the model for the per-candidate analysis and scoring
// calls: the mini model when configured, otherwise the primary model.
func analysisModel(oc config.OpenAIConfig) string {
	if oc.MiniModel != "" {
		return oc.MiniModel
	}
	return oc.Model
}

// applyPricingOverrides folds configured per-model rates over the defaults.
func applyPricingOverrides(rates *cost.Rates) {
	for model, p := range cfg.Pricing.OpenAI {
		rates.OpenAI[model] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	for model, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
}
