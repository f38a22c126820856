package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forkline/expansion-cli/internal/concurrency"
	"github.com/forkline/expansion-cli/internal/cost"
	"github.com/forkline/expansion-cli/internal/resilience"
)

// Cache is the seeded response cache. The store layer implements it.
type Cache interface {
	GetCached(ctx context.Context, key string) ([]byte, bool, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Operation describes one pipeline call on behalf of a domain service.
type Operation struct {
	// Type selects the per-operation timeout.
	Type resilience.OpType
	// Name is the cache key namespace and cost attribution label.
	Name string
	// System and User are the prompt blocks.
	System string
	User   string
	// Context is the canonical prompt context: everything that makes this
	// call's output distinct. It feeds the seed and the cache key.
	Context map[string]any
	// Schema validates the extracted JSON when set.
	Schema *Schema
	// MaxTokens caps the completion length. Zero lets the provider default.
	MaxTokens int
	// Priority orders this call in the concurrency queue.
	Priority concurrency.Priority
}

// Result is the validated outcome of a pipeline call.
type Result struct {
	Text     string
	JSON     []byte
	Seed     int64
	CacheKey string
	CacheHit bool
	Provider string
	Model    string
}

// Pipeline coordinates seeding, caching, concurrency, retries, provider
// fallback, and cost accounting for all LLM calls.
type Pipeline struct {
	primary  Provider
	fallback Provider // nil when no fallback is configured
	cache    Cache    // nil when caching is disabled
	cacheTTL time.Duration
	limiter  *concurrency.Limiter
	timeouts *resilience.Timeouts
	retry    resilience.RetryConfig
	breakers *resilience.ProviderBreakers
	monitor  *cost.Monitor
}

// Options configures a Pipeline.
type Options struct {
	Primary  Provider
	Fallback Provider
	Cache    Cache
	CacheTTL time.Duration
	Limiter  *concurrency.Limiter
	Timeouts *resilience.Timeouts
	Retry    resilience.RetryConfig
	Monitor  *cost.Monitor
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(opts Options) *Pipeline {
	if opts.Limiter == nil {
		opts.Limiter = concurrency.New(4, 0)
	}
	if opts.Timeouts == nil {
		opts.Timeouts = resilience.NewTimeouts(nil)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Pipeline{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		limiter:  opts.Limiter,
		timeouts: opts.Timeouts,
		retry:    opts.Retry,
		breakers: resilience.NewProviderBreakers(resilience.DefaultCircuitBreakerConfig()),
		monitor:  opts.Monitor,
	}
}

// Execute runs one operation through the full pipeline: seed derivation,
// cache lookup, slot acquisition, provider call with retries and fallback,
// text extraction, schema validation, cache write, and cost recording.
func (p *Pipeline) Execute(ctx context.Context, op Operation) (*Result, error) {
	log := zap.L().With(zap.String("operation", op.Name))

	seedCtx := make(map[string]any, len(op.Context)+2)
	for k, v := range op.Context {
		seedCtx[k] = v
	}
	seedCtx["_system"] = op.System
	seedCtx["_user"] = op.User

	seed := SeedFrom(seedCtx)
	key := CacheKey(op.Name, seedCtx, seed)

	if p.cache != nil {
		cached, ok, err := p.cache.GetCached(ctx, key)
		if err != nil {
			log.Warn("cache lookup failed", zap.Error(err))
		} else if ok {
			if res, err := p.finish(op, string(cached), seed, key, true, "", ""); err == nil {
				log.Debug("cache hit", zap.String("cache_key", key))
				return res, nil
			}
			// A cached entry that no longer validates is treated as a miss.
			log.Warn("cached response failed validation, refetching", zap.String("cache_key", key))
		}
	}

	req := Request{
		System:    op.System,
		User:      op.User,
		MaxTokens: op.MaxTokens,
		Seed:      seed,
		JSONMode:  op.Schema != nil,
	}

	var resp *Response
	var provider string
	err := p.limiter.Do(ctx, op.Priority, func(ctx context.Context) error {
		opCtx, cancel := p.timeouts.Context(ctx, op.Type)
		defer cancel()

		start := time.Now()
		var callErr error
		resp, provider, callErr = p.call(opCtx, op, req)
		latency := time.Since(start)

		if callErr == nil && p.monitor != nil {
			entry := p.monitor.Record(op.Name, provider, resp.Model, resp.InputTokens, resp.OutputTokens, latency, false)
			log.Debug("completion call",
				zap.String("provider", provider),
				zap.String("model", resp.Model),
				zap.Duration("latency", latency),
				zap.Float64("cost_usd", entry.CostUSD),
			)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	result, err := p.finish(op, resp.Text, seed, key, false, provider, resp.Model)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetCached(ctx, key, []byte(resp.Text), p.cacheTTL); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	}

	return result, nil
}

// call tries the primary provider with retries behind its circuit breaker,
// then the fallback provider the same way.
func (p *Pipeline) call(ctx context.Context, op Operation, req Request) (*Response, string, error) {
	resp, err := p.callProvider(ctx, p.primary, op, req)
	if err == nil {
		return resp, p.primary.Name(), nil
	}

	if p.fallback == nil {
		return nil, "", err
	}

	zap.L().Warn("primary provider failed, trying fallback",
		zap.String("operation", op.Name),
		zap.String("primary", p.primary.Name()),
		zap.String("fallback", p.fallback.Name()),
		zap.Error(err),
	)

	resp, fbErr := p.callProvider(ctx, p.fallback, op, req)
	if fbErr != nil {
		return nil, "", eris.Wrapf(err, "llm: fallback also failed: %v", fbErr)
	}
	return resp, p.fallback.Name(), nil
}

func (p *Pipeline) callProvider(ctx context.Context, prov Provider, op Operation, req Request) (*Response, error) {
	cb := p.breakers.Get(prov.Name())

	retryCfg := p.retry
	retryCfg.OnRetry = resilience.RetryLogger(prov.Name(), op.Name)
	retryCfg.ShouldRetry = func(err error) bool {
		// An open breaker is not worth retrying inside this call.
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return resilience.IsTransient(err)
	}

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Response, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Response, error) {
			return prov.Complete(ctx, req)
		})
	})
}

// finish extracts and validates the payload, producing the final Result.
func (p *Pipeline) finish(op Operation, text string, seed int64, key string, cacheHit bool, provider, model string) (*Result, error) {
	res := &Result{
		Text:     text,
		Seed:     seed,
		CacheKey: key,
		CacheHit: cacheHit,
		Provider: provider,
		Model:    model,
	}

	if op.Schema != nil {
		payload, err := ExtractJSON(text)
		if err != nil {
			return nil, err
		}
		if err := op.Schema.Validate(payload); err != nil {
			return nil, err
		}
		res.JSON = payload
	}

	if cacheHit && p.monitor != nil {
		p.monitor.Record(op.Name, "cache", model, 0, 0, 0, true)
	}

	return res, nil
}
