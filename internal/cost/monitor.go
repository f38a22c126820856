package cost

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry records usage for one completed LLM call.
type Entry struct {
	Operation    string        `json:"operation"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	CostUSD      float64       `json:"cost_usd"`
	CacheHit     bool          `json:"cache_hit"`
	At           time.Time     `json:"at"`
}

// OpStats aggregates usage for one operation type.
type OpStats struct {
	Operation    string        `json:"operation"`
	Calls        int           `json:"calls"`
	CacheHits    int           `json:"cache_hits"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalLatency time.Duration `json:"total_latency"`
	CostUSD      float64       `json:"cost_usd"`
}

// AvgLatency returns the mean latency over non-cached calls.
func (s OpStats) AvgLatency() time.Duration {
	live := s.Calls - s.CacheHits
	if live <= 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(live)
}

// Monitor aggregates cost and performance per operation type and alerts
// when the accumulated spend crosses the configured budget.
type Monitor struct {
	mu       sync.Mutex
	calc     *Calculator
	byOp     map[string]*OpStats
	totalUSD float64
	alertUSD float64
	alerted  bool
}

// NewMonitor creates a Monitor. A non-positive alertUSD disables alerting.
func NewMonitor(calc *Calculator, alertUSD float64) *Monitor {
	return &Monitor{
		calc:     calc,
		byOp:     make(map[string]*OpStats),
		alertUSD: alertUSD,
	}
}

// Record computes the cost for a call and folds it into the per-operation
// aggregate. Cache hits are recorded with zero cost and latency. Returns the
// completed Entry for persistence.
func (m *Monitor) Record(operation, provider, model string, inputTokens, outputTokens int, latency time.Duration, cacheHit bool) Entry {
	e := Entry{
		Operation:    operation,
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      latency,
		At:           time.Now().UTC(),
		CacheHit:     cacheHit,
	}
	if !cacheHit {
		e.CostUSD = m.calc.Call(provider, model, inputTokens, outputTokens)
	} else {
		e.InputTokens = 0
		e.OutputTokens = 0
		e.Latency = 0
	}

	m.mu.Lock()
	st, ok := m.byOp[operation]
	if !ok {
		st = &OpStats{Operation: operation}
		m.byOp[operation] = st
	}
	st.Calls++
	if cacheHit {
		st.CacheHits++
	}
	st.InputTokens += e.InputTokens
	st.OutputTokens += e.OutputTokens
	st.TotalLatency += e.Latency
	st.CostUSD += e.CostUSD
	m.totalUSD += e.CostUSD

	shouldAlert := m.alertUSD > 0 && !m.alerted && m.totalUSD >= m.alertUSD
	if shouldAlert {
		m.alerted = true
	}
	total := m.totalUSD
	m.mu.Unlock()

	if shouldAlert {
		zap.L().Warn("cost budget threshold crossed",
			zap.Float64("total_usd", total),
			zap.Float64("budget_usd", m.alertUSD),
			zap.String("operation", operation),
		)
	}

	return e
}

// TotalUSD returns the accumulated spend.
func (m *Monitor) TotalUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalUSD
}

// Snapshot returns per-operation aggregates sorted by operation name.
func (m *Monitor) Snapshot() []OpStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]OpStats, 0, len(m.byOp))
	for _, st := range m.byOp {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// LogSnapshot logs the per-operation aggregates with structured fields.
func (m *Monitor) LogSnapshot() {
	for _, st := range m.Snapshot() {
		zap.L().Info("operation cost summary",
			zap.String("operation", st.Operation),
			zap.Int("calls", st.Calls),
			zap.Int("cache_hits", st.CacheHits),
			zap.Int("input_tokens", st.InputTokens),
			zap.Int("output_tokens", st.OutputTokens),
			zap.Duration("avg_latency", st.AvgLatency()),
			zap.Float64("cost_usd", st.CostUSD),
		)
	}
}
