package xlimit

import (
	"context"
	"strconv"
	"time"
)

//go:generate mockgen -destination=mock_store_test.go -package=xlimit github.com/omeyang/xwindow/pkg/resilience/xlimit CounterStore,AtomicCounterStore

// CounterStore 共享计数存储的最小接口
//
// 键空间是扁平字符串，值是十进制整数的字符串形式。
// 实现应该是并发安全的；所有调用都是单次尝试，不做重试。
type CounterStore interface {
	// Get 读取键的当前值，键不存在时 found 为 false
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetWithExpiry 写入值并将过期时间设置为 ttl
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
}

// AtomicCounterStore 支持原子自增的存储
type AtomicCounterStore interface {
	CounterStore

	// IncrementWithExpiryOnCreate 原子自增并返回新值，
	// 仅当新值为 1（计数刚创建）时设置过期时间
	IncrementWithExpiryOnCreate(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// CASCounterStore 支持比较并设置的存储
type CASCounterStore interface {
	CounterStore

	// CompareAndSet 当键的状态仍为 (expected, found) 时写入 value 并刷新过期时间，
	// 否则返回 ErrCASConflict
	CompareAndSet(ctx context.Context, key, expected string, found bool, value string, ttl time.Duration) error
}

// storeUnwrapper 包装型存储（如熔断包装）暴露内层存储，用于能力探测
type storeUnwrapper interface {
	Unwrap() CounterStore
}

// asAtomic 检查存储（及其内层）是否支持原子自增
func asAtomic(store CounterStore) (AtomicCounterStore, bool) {
	a, ok := store.(AtomicCounterStore)
	if !ok {
		return nil, false
	}
	if u, ok := store.(storeUnwrapper); ok {
		if _, innerOK := asAtomic(u.Unwrap()); !innerOK {
			return nil, false
		}
	}
	return a, true
}

// asCAS 检查存储（及其内层）是否支持比较并设置
func asCAS(store CounterStore) (CASCounterStore, bool) {
	c, ok := store.(CASCounterStore)
	if !ok {
		return nil, false
	}
	if u, ok := store.(storeUnwrapper); ok {
		if _, innerOK := asCAS(u.Unwrap()); !innerOK {
			return nil, false
		}
	}
	return c, true
}

// parseCount 解析存储中的计数值
func parseCount(key, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &CounterError{Key: key, Raw: raw, Err: err}
	}
	return n, nil
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
