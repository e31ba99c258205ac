package memory

import (
	"context"
	"sync"
	"time"

	corenumerator "stockpos/internal/core/numerator"
	"stockpos/pkg/numerator"
)

// Numerator counts per sequence key in memory.
type Numerator struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewNumerator creates a Numerator.
func NewNumerator() *Numerator {
	return &Numerator{values: make(map[string]int64)}
}

// GetNextNumber implements numerator.Generator. The strategy is irrelevant here.
func (n *Numerator) GetNextNumber(_ context.Context, cfg corenumerator.Config, _ *corenumerator.Options, at time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := numerator.BuildKey(cfg, at)
	n.values[key]++
	return numerator.Format(cfg, at, n.values[key]), nil
}

var _ corenumerator.Generator = (*Numerator)(nil)
