// Package numerator implements core/numerator.Generator on top of the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "stockpos/internal/core/numerator"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service hands out sequential numbers.
// Numbers are drawn on the pool, outside the caller's business transaction,
// so a rolled back settlement leaves a gap rather than blocking the sequence row.
type Service struct {
	querier Querier

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator over querier.
func New(querier Querier) *Service {
	return &Service{
		querier: querier,
		ranges:  make(map[string]*cachedRange),
	}
}

// GetNextNumber generates the next number.
// Pattern: PREFIX-YEAR-XXXXX (e.g., SALE-2026-00001)
func (s *Service) GetNextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, at time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if cfg.Prefix == "" {
		return "", fmt.Errorf("numerator: prefix is required")
	}
	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	key := BuildKey(cfg, at)

	var (
		num int64
		err error
	)
	switch opts.Strategy {
	case corenumerator.StrategyCached:
		num, err = s.nextCached(ctx, key, opts.RangeSize)
	default:
		num, err = s.reserve(ctx, key, 1)
	}
	if err != nil {
		return "", err
	}

	return Format(cfg, at, num), nil
}

// reserve bumps the sequence by n and returns the new upper bound.
func (s *Service) reserve(ctx context.Context, key string, n int64) (int64, error) {
	var upper int64
	err := s.querier.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, key, n).Scan(&upper)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence %s: %w", key, err)
	}
	return upper, nil
}

func (s *Service) nextCached(ctx context.Context, key string, size int64) (int64, error) {
	if size <= 0 {
		size = 50
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		upper, err := s.reserve(ctx, key, size)
		if err != nil {
			return 0, err
		}
		// range is (upper-size, upper]
		rng.current = upper - size
		rng.max = upper
	}

	rng.current++
	return rng.current, nil
}

// BuildKey creates the sequence key for cfg and period.
func BuildKey(cfg corenumerator.Config, at time.Time) string {
	base := cfg.Prefix
	if cfg.Scope != "" {
		base = cfg.Prefix + "_" + cfg.Scope
	}
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", base, at.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", base, at.Format("2006"))
	default:
		return base
	}
}

// Format renders num according to cfg.
func Format(cfg corenumerator.Config, at time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, at.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}
