package resilience

import (
	"context"
	"time"
)

// OpType identifies a pipeline operation for timeout selection.
type OpType string

const (
	OpDiscovery  OpType = "discovery"
	OpAnalysis   OpType = "analysis"
	OpScoring    OpType = "scoring"
	OpValidation OpType = "validation"
)

// Timeouts maps operation types to their deadlines.
type Timeouts struct {
	perOp    map[OpType]time.Duration
	fallback time.Duration
}

// NewTimeouts builds a Timeouts table. Zero or negative durations fall back
// to the default per-operation deadline.
func NewTimeouts(perOp map[OpType]time.Duration) *Timeouts {
	t := &Timeouts{
		perOp:    make(map[OpType]time.Duration, len(perOp)),
		fallback: 90 * time.Second,
	}
	for op, d := range perOp {
		if d > 0 {
			t.perOp[op] = d
		}
	}
	return t
}

// For returns the timeout for the given operation type.
func (t *Timeouts) For(op OpType) time.Duration {
	if d, ok := t.perOp[op]; ok {
		return d
	}
	return t.fallback
}

// Context derives a context with the deadline for the given operation type.
func (t *Timeouts) Context(ctx context.Context, op OpType) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.For(op))
}
