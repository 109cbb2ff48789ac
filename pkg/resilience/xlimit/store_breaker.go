package xlimit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerName      = "xlimit-store"
	defaultBreakerTimeout   = 30 * time.Second
	defaultBreakerThreshold = 5
)

// BreakerStore 为计数存储加上熔断
//
// 存储连续失败达到阈值后熔断器打开，后续调用直接返回 *StoreError
// （匹配 ErrStoreUnavailable），不再访问存储。熔断只影响"何时报告不可用"，
// fail-open 还是 fail-closed 仍由调用方决定。计数值损坏与 CAS 冲突不计为失败。
type BreakerStore struct {
	next CounterStore
	cb   *gobreaker.CircuitBreaker[any]
}

type breakerConfig struct {
	name          string
	timeout       time.Duration
	threshold     uint32
	onStateChange func(name string, from, to string)
}

// BreakerOption BreakerStore 配置选项
type BreakerOption func(*breakerConfig)

// WithBreakerName 设置熔断器名称
func WithBreakerName(name string) BreakerOption {
	return func(c *breakerConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithBreakerTimeout 设置熔断器从 Open 恢复到 HalfOpen 的时间，默认 30 秒
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(c *breakerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreakerThreshold 设置触发熔断的连续失败次数，默认 5
func WithBreakerThreshold(n uint32) BreakerOption {
	return func(c *breakerConfig) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithBreakerOnStateChange 设置状态变化回调
func WithBreakerOnStateChange(fn func(name, from, to string)) BreakerOption {
	return func(c *breakerConfig) {
		c.onStateChange = fn
	}
}

// NewBreakerStore 创建带熔断的计数存储
func NewBreakerStore(next CounterStore, opts ...BreakerOption) (*BreakerStore, error) {
	if next == nil {
		return nil, ErrNilStore
	}

	cfg := &breakerConfig{
		name:      defaultBreakerName,
		timeout:   defaultBreakerTimeout,
		threshold: defaultBreakerThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	settings := gobreaker.Settings{
		Name:        cfg.name,
		MaxRequests: 1,
		Timeout:     cfg.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsStoreError(err)
		},
	}
	if cfg.onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.onStateChange(name, from.String(), to.String())
		}
	}

	return &BreakerStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}, nil
}

// Unwrap 返回内层存储
func (s *BreakerStore) Unwrap() CounterStore {
	return s.next
}

// State 返回熔断器当前状态：closed、half-open 或 open
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

type getReply struct {
	value string
	found bool
}

// Get 经熔断器读取
func (s *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.cb.Execute(func() (any, error) {
		v, found, err := s.next.Get(ctx, key)
		return getReply{value: v, found: found}, err
	})
	if err != nil {
		return "", false, breakerError("get", key, err)
	}
	reply, _ := res.(getReply) //nolint:errcheck // 类型由闭包保证
	return reply.value, reply.found, nil
}

// SetWithExpiry 经熔断器写入
func (s *BreakerStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.SetWithExpiry(ctx, key, value, ttl)
	})
	return breakerError("set", key, err)
}

// IncrementWithExpiryOnCreate 经熔断器原子自增；内层不支持时返回 ErrAtomicUnsupported
func (s *BreakerStore) IncrementWithExpiryOnCreate(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	atomic, ok := asAtomic(s.next)
	if !ok {
		return 0, ErrAtomicUnsupported
	}
	res, err := s.cb.Execute(func() (any, error) {
		return atomic.IncrementWithExpiryOnCreate(ctx, key, ttl)
	})
	if err != nil {
		return 0, breakerError("incr", key, err)
	}
	n, _ := res.(int64) //nolint:errcheck // 类型由闭包保证
	return n, nil
}

// CompareAndSet 经熔断器比较并设置；内层不支持时返回 ErrCASUnsupported
func (s *BreakerStore) CompareAndSet(ctx context.Context, key, expected string, found bool, value string, ttl time.Duration) error {
	cas, ok := asCAS(s.next)
	if !ok {
		return ErrCASUnsupported
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, cas.CompareAndSet(ctx, key, expected, found, value, ttl)
	})
	return breakerError("cas", key, err)
}

// breakerError 熔断器拒绝的调用包装为 *StoreError，其余错误保持原样
func breakerError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &StoreError{Op: op, Key: key, Err: err}
	}
	return err
}

var (
	_ AtomicCounterStore = (*BreakerStore)(nil)
	_ CASCounterStore    = (*BreakerStore)(nil)
)
