// Package numerator defines the contract for human-readable transaction numbers
// (SALE-2026-00042). Implementations live in pkg/numerator and storage/memory.
package numerator

import (
	"context"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict hits the sequence table for every number. No gaps.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges in memory. Gaps appear after restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached (default 50).
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "SALE", "RET")
	Prefix string

	// Scope separates independent sequences, typically the store ID.
	Scope string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns a yearly-reset config for prefix within scope.
func DefaultConfig(prefix, scope string) Config {
	return Config{
		Prefix:      prefix,
		Scope:       scope,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Generator generates sequential numbers.
type Generator interface {
	// GetNextNumber returns the next number for cfg in the period containing at.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, at time.Time) (string, error)
}
