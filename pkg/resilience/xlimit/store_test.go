//nolint:errcheck // 测试文件中的 defer Close() 允许忽略错误
package xlimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() {
		client.Close()
	})
	return mr, client
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// MemoryStore
// =============================================================================

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetWithExpiry(ctx, "k", "3", time.Minute))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", v)

	ttl, ok := s.TTL("k")
	require.True(t, ok)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(time.Minute)
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "entry expires after ttl")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_NoExpiry(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SetWithExpiry(context.Background(), "k", "1", 0))
	ttl, ok := s.TTL("k")
	require.True(t, ok)
	assert.Equal(t, time.Duration(-1), ttl)

	s.Delete("k")
	_, ok = s.TTL("k")
	assert.False(t, ok)
}

func TestMemoryStore_IncrementExpiryOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))

	n, err := s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(40 * time.Second)
	n, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, _ := s.TTL("k")
	assert.Equal(t, 20*time.Second, ttl, "increment must not refresh the expiry")

	clock.Advance(20 * time.Second)
	n, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "new window starts at 1")
}

func TestMemoryStore_IncrementMalformed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SetWithExpiry(ctx, "k", "abc", time.Minute))

	_, err := s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.Error(t, err)
	assert.True(t, IsMalformedCounter(err))

	var ce *CounterError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "abc", ce.Raw)
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute))
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute), ErrCASConflict)
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "7", true, "8", time.Minute), ErrCASConflict)
	require.NoError(t, s.CompareAndSet(ctx, "k", "1", true, "2", time.Minute))

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "2", v)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SetWithExpiry(ctx, "k", "1", time.Minute), context.Canceled)
	_, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute), context.Canceled)
}

// =============================================================================
// RedisStore
// =============================================================================

func TestNewRedisStore_Nil(t *testing.T) {
	_, err := NewRedisStore(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestRedisStore_GetSet(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	s, err := NewRedisStore(client)
	require.NoError(t, err)
	assert.Equal(t, client, s.Client())

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetWithExpiry(ctx, "k", "5", time.Minute))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "5", v)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_IncrementExpiryOnlyOnCreate(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	s, _ := NewRedisStore(client)

	n, err := s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(30 * time.Second)
	n, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Second, mr.TTL("k"))

	mr.FastForward(30 * time.Second)
	n, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_IncrementNonInteger(t *testing.T) {
	mr, client := setupMiniredis(t)
	s, _ := NewRedisStore(client)
	require.NoError(t, mr.Set("k", "abc"))

	_, err := s.IncrementWithExpiryOnCreate(context.Background(), "k", time.Minute)
	require.Error(t, err)

	v, _ := mr.Get("k")
	assert.Equal(t, "abc", v, "failed increment leaves the value untouched")
}

func TestRedisStore_CompareAndSet(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	s, _ := NewRedisStore(client)

	require.NoError(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute), ErrCASConflict)
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "9", true, "10", time.Minute), ErrCASConflict)

	require.NoError(t, s.CompareAndSet(ctx, "k", "1", true, "2", time.Minute))
	v, _ := mr.Get("k")
	assert.Equal(t, "2", v)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	s, _ := NewRedisStore(client)
	mr.Close()

	_, _, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, IsStoreError(err))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get", se.Op)
	assert.Equal(t, "k", se.Key)

	assert.ErrorIs(t, s.SetWithExpiry(ctx, "k", "1", time.Minute), ErrStoreUnavailable)

	_, err = s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.ErrorIs(t, s.CompareAndSet(ctx, "k", "", false, "1", time.Minute), ErrStoreUnavailable)
}

// =============================================================================
// BreakerStore
// =============================================================================

func TestNewBreakerStore_Nil(t *testing.T) {
	_, err := NewBreakerStore(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := NewMockCounterStore(ctrl)

	down := &StoreError{Op: "get", Key: "k", Err: errors.New("connection refused")}
	inner.EXPECT().Get(gomock.Any(), "k").Return("", false, down).Times(2)

	var transitions []string
	s, err := NewBreakerStore(inner,
		WithBreakerName("test"),
		WithBreakerThreshold(2),
		WithBreakerTimeout(time.Hour),
		WithBreakerOnStateChange(func(name, from, to string) {
			transitions = append(transitions, name+":"+from+"->"+to)
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for range 2 {
		_, _, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	}
	assert.Equal(t, "open", s.State())
	assert.Equal(t, []string{"test:closed->open"}, transitions)

	// 熔断打开后不再访问内层存储
	_, _, err = s.Get(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, "circuit_open", classifyError(err))

	assert.ErrorIs(t, s.SetWithExpiry(ctx, "k", "1", time.Minute), gobreaker.ErrOpenState)
}

func TestBreakerStore_MalformedCounterDoesNotTrip(t *testing.T) {
	inner := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, inner.SetWithExpiry(ctx, "k", "abc", time.Minute))

	s, err := NewBreakerStore(inner, WithBreakerThreshold(1))
	require.NoError(t, err)

	for range 3 {
		_, err := s.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
		assert.True(t, IsMalformedCounter(err))
	}
	assert.Equal(t, "closed", s.State())
}

func TestBreakerStore_Capabilities(t *testing.T) {
	ctrl := gomock.NewController(t)
	plain, err := NewBreakerStore(NewMockCounterStore(ctrl))
	require.NoError(t, err)

	_, ok := asAtomic(plain)
	assert.False(t, ok, "capability follows the inner store")
	_, ok = asCAS(plain)
	assert.False(t, ok)

	ctx := context.Background()
	_, err = plain.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrAtomicUnsupported)
	assert.ErrorIs(t, plain.CompareAndSet(ctx, "k", "", false, "1", time.Minute), ErrCASUnsupported)

	mem, err := NewBreakerStore(NewMemoryStore())
	require.NoError(t, err)
	_, ok = asAtomic(mem)
	assert.True(t, ok)
	_, ok = asCAS(mem)
	assert.True(t, ok)

	n, err := mem.IncrementWithExpiryOnCreate(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mem.CompareAndSet(ctx, "k", "1", true, "2", time.Minute))
	v, found, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", v)
	assert.IsType(t, &MemoryStore{}, mem.Unwrap())
}
