package xlimit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const hammerN = 50

// readBarrierStore 让所有调用方都完成读取后才放行任何写入，
// 稳定复现读取-比较-写回之间的竞争窗口
type readBarrierStore struct {
	CounterStore
	reads sync.WaitGroup
}

func newReadBarrierStore(inner CounterStore, callers int) *readBarrierStore {
	s := &readBarrierStore{CounterStore: inner}
	s.reads.Add(callers)
	return s
}

func (s *readBarrierStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, found, err := s.CounterStore.Get(ctx, key)
	s.reads.Done()
	s.reads.Wait()
	return v, found, err
}

// hammer 并发对同一描述符调用 n 次 ShouldLimit
func hammer(t *testing.T, l *Limiter, n int) {
	t.Helper()
	d := NewDescriptor("hot", "", "")
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := l.ShouldLimit(context.Background(), d)
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func storedCount(t *testing.T, store CounterStore, key string) int64 {
	t.Helper()
	raw, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	n, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	return n
}

func TestHammer_NaiveUndercounts(t *testing.T) {
	for name, newStore := range strategyStores(t) {
		t.Run(name, func(t *testing.T) {
			inner := newStore(t)
			store := newReadBarrierStore(inner, hammerN)
			l := newTestLimiter(t, store, WithRules(GeneralRule(hammerN*10, IntervalMinute)))

			hammer(t, l, hammerN)

			got := storedCount(t, inner, "ratelimit:hot")
			assert.Less(t, got, int64(hammerN), "naive read-compare-write loses updates under contention")
			assert.Equal(t, int64(1), got, "every caller read the absent key and wrote 1")
		})
	}
}

func TestHammer_AtomicCountsExactly(t *testing.T) {
	for name, newStore := range strategyStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			l := newTestLimiter(t, store,
				WithStrategy(StrategyAtomic),
				WithRules(GeneralRule(hammerN*10, IntervalMinute)),
			)

			hammer(t, l, hammerN)

			assert.Equal(t, int64(hammerN), storedCount(t, store, "ratelimit:hot"))
		})
	}
}

func TestHammer_NaiveVersusAtomic(t *testing.T) {
	naiveInner := NewMemoryStore()
	naive := newTestLimiter(t, newReadBarrierStore(naiveInner, hammerN),
		WithRules(GeneralRule(hammerN*10, IntervalMinute)))
	atomicStore := NewMemoryStore()
	atomic := newTestLimiter(t, atomicStore,
		WithStrategy(StrategyAtomic),
		WithRules(GeneralRule(hammerN*10, IntervalMinute)))

	hammer(t, naive, hammerN)
	hammer(t, atomic, hammerN)

	naiveCount := storedCount(t, naiveInner, "ratelimit:hot")
	atomicCount := storedCount(t, atomicStore, "ratelimit:hot")
	assert.Equal(t, int64(hammerN), atomicCount)
	assert.Less(t, naiveCount, atomicCount)
}

func TestHammer_CASCountsExactly(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLimiter(t, store,
		WithStrategy(StrategyCAS),
		WithCASMaxAttempts(hammerN+1),
		WithRules(GeneralRule(hammerN*10, IntervalMinute)),
	)

	hammer(t, l, hammerN)

	assert.Equal(t, int64(hammerN), storedCount(t, store, "ratelimit:hot"))
}

func TestHammer_AtomicNeverOverAdmits(t *testing.T) {
	const allowed = 10
	store := NewMemoryStore()
	l := newTestLimiter(t, store,
		WithStrategy(StrategyAtomic),
		WithRules(GeneralRule(allowed, IntervalMinute)),
	)

	var (
		mu       sync.Mutex
		accepted int
		g        errgroup.Group
	)
	d := NewDescriptor("hot", "", "")
	for range hammerN {
		g.Go(func() error {
			limited, err := l.ShouldLimit(context.Background(), d)
			if err != nil {
				return err
			}
			if !limited {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, allowed, accepted)
	ttl, ok := store.TTL("ratelimit:hot")
	require.True(t, ok)
	assert.LessOrEqual(t, ttl, time.Minute)
}
