package memory

import (
	"context"
	"sync"
	"time"

	"stockpos/internal/domain/audit"
)

// DiscrepancyLog keeps discrepancies in insertion order.
type DiscrepancyLog struct {
	mu      sync.Mutex
	entries []audit.Discrepancy
}

// NewDiscrepancyLog creates an empty log.
func NewDiscrepancyLog() *DiscrepancyLog { return &DiscrepancyLog{} }

func (l *DiscrepancyLog) RecordDiscrepancy(_ context.Context, d audit.Discrepancy) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, d)
	return nil
}

// ListDiscrepancies returns entries at or after since, newest first.
func (l *DiscrepancyLog) ListDiscrepancies(_ context.Context, since time.Time, limit int) ([]audit.Discrepancy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []audit.Discrepancy
	for i := len(l.entries) - 1; i >= 0; i-- {
		d := l.entries[i]
		if d.OccurredAt.Before(since) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ audit.Recorder = (*DiscrepancyLog)(nil)
