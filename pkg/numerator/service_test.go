package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "stockpos/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences keyed by the first argument.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{values: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	key := args[0].(string)
	m.values[key] += args[1].(int64)
	return &mockRow{val: m.values[key]}
}

var period = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("SALE", "store-1")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-2026-00001" {
		t.Errorf("expected SALE-2026-00001, got %s", num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-2026-00002" {
		t.Errorf("expected SALE-2026-00002, got %s", num)
	}
	if q.calls != 2 {
		t.Errorf("expected 2 sequence hits, got %d", q.calls)
	}
}

func TestGetNextNumber_ScopesAreIndependent(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()

	a, _ := svc.GetNextNumber(ctx, corenumerator.DefaultConfig("SALE", "store-a"), nil, period)
	b, _ := svc.GetNextNumber(ctx, corenumerator.DefaultConfig("SALE", "store-b"), nil, period)

	if a != "SALE-2026-00001" || b != "SALE-2026-00001" {
		t.Errorf("expected both stores to start at 1, got %s and %s", a, b)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("RET", "store-1")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	for i := 1; i <= 10; i++ {
		num, err := svc.GetNextNumber(ctx, cfg, opts, period)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := Format(cfg, period, int64(i)); num != want {
			t.Errorf("expected %s, got %s", want, num)
		}
	}
	if q.calls != 1 {
		t.Errorf("expected a single range reservation, got %d", q.calls)
	}

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "RET-2026-00011" {
		t.Errorf("expected RET-2026-00011, got %s", num)
	}
	if q.calls != 2 {
		t.Errorf("expected range refill, got %d calls", q.calls)
	}
}

func TestGetNextNumber_PropagatesQueryError(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection reset")
	svc := New(q)

	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("SALE", "s"), nil, period)
	if err == nil || !errors.Is(err, q.err) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  corenumerator.Config
		want string
	}{
		{"yearly", corenumerator.Config{Prefix: "SALE", Scope: "s1", ResetPeriod: "year"}, "SALE_s1_2026"},
		{"monthly", corenumerator.Config{Prefix: "SALE", ResetPeriod: "month"}, "SALE_2026_03"},
		{"never", corenumerator.Config{Prefix: "TRF", Scope: "s1", ResetPeriod: "never"}, "TRF_s1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildKey(tt.cfg, period); got != tt.want {
				t.Errorf("BuildKey() = %s, want %s", got, tt.want)
			}
		})
	}
}
