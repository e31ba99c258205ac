package ledger

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepKind int

const (
	stepAdd stepKind = iota
	stepRemove
	stepAdjust
	stepReserve
	stepRelease
)

func (k stepKind) String() string {
	return [...]string{"add", "remove", "adjust", "reserve", "release"}[k]
}

func (k stepKind) recordsMovement() bool {
	return k == stepAdd || k == stepRemove || k == stepAdjust
}

// qty draws a quantity, now and then zero or negative to exercise rejection.
func qty(rng *rand.Rand, upTo int64) int64 {
	if rng.IntN(10) == 0 {
		return -rng.Int64N(3)
	}
	return 1 + rng.Int64N(upTo)
}

func TestRecord_SequenceInvariants(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42, 2026, 90210} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed))
			r := newTestRecord(t, 8)
			now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
			const initial = int64(0)
			require.Equal(t, initial, r.CurrentStock)

			for i := 0; i < 300; i++ {
				now = now.Add(time.Minute)
				kind := stepKind(rng.IntN(5))
				beforeStock, beforeReserved, beforeLen := r.CurrentStock, r.ReservedStock, r.Movements().Len()

				var err error
				switch kind {
				case stepAdd:
					_, err = r.AddStock(mut(qty(rng, 20)), now)
				case stepRemove:
					_, err = r.RemoveStock(mut(qty(rng, 30)), false, now)
				case stepAdjust:
					n := rng.Int64N(40)
					if rng.IntN(15) == 0 {
						n = -1
					}
					_, err = r.AdjustStock(n, mut(0), now)
				case stepReserve:
					err = r.ReserveStock(qty(rng, 15), now)
				case stepRelease:
					_, err = r.ReleaseReservedStock(qty(rng, 15), now)
				}

				msg := fmt.Sprintf("step %d %s", i, kind)
				if err != nil {
					assert.Equal(t, beforeStock, r.CurrentStock, msg)
					assert.Equal(t, beforeReserved, r.ReservedStock, msg)
					assert.Equal(t, beforeLen, r.Movements().Len(), "failed %s", msg)
				} else if kind.recordsMovement() {
					require.Equal(t, beforeLen+1, r.Movements().Len(), msg)
					last := r.Movements().Entries()[beforeLen]
					assert.Equal(t, beforeStock, last.StockBefore, msg)
					assert.Equal(t, r.CurrentStock, last.StockAfter, msg)
				} else {
					assert.Equal(t, beforeLen, r.Movements().Len(), msg)
				}

				assert.Equal(t, initial+r.Movements().Sum(), r.CurrentStock, msg)
				assert.Equal(t, max(0, r.CurrentStock-r.ReservedStock), r.AvailableStock, msg)
				assert.GreaterOrEqual(t, r.CurrentStock, int64(0), msg)
				assert.GreaterOrEqual(t, r.ReservedStock, int64(0), msg)
				assert.LessOrEqual(t, r.AvailableStock, r.CurrentStock, msg)
			}
		})
	}
}
