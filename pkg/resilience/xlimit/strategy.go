package xlimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// hitResult 一次计数器操作的结果
type hitResult struct {
	// Count 操作后的计数；被拒绝时为读到的计数（naive/cas）或自增后的计数（atomic）
	Count int64
	// Limited 是否超限
	Limited bool
	// Created 本次是否创建了新的计数器
	Created bool
}

// windowStrategy 计数器读写策略
type windowStrategy interface {
	hit(ctx context.Context, key string, rule Rule) (hitResult, error)
}

// newStrategy 按配置创建策略，并检查存储能力
func newStrategy(store CounterStore, cfg Config) (windowStrategy, error) {
	switch cfg.Strategy {
	case StrategyNaive, "":
		return &naiveStrategy{store: store, threshold: cfg.Threshold}, nil
	case StrategyAtomic:
		atomic, ok := asAtomic(store)
		if !ok {
			return nil, ErrAtomicUnsupported
		}
		return &atomicStrategy{store: atomic, threshold: cfg.Threshold}, nil
	case StrategyCAS:
		cas, ok := asCAS(store)
		if !ok {
			return nil, ErrCASUnsupported
		}
		return &casStrategy{
			store:       cas,
			threshold:   cfg.Threshold,
			maxAttempts: cfg.CASMaxAttempts,
			delay:       casRetryDelay,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
}

// =============================================================================
// naive：读取 → 比较 → 写回
// =============================================================================

// naiveStrategy 非原子的读取-比较-写回
//
// 已知一致性缺口：两个并发请求可能读到相同的 v，都判定放行并都写回 v+1，
// 每次竞争少计一次。每次放行都把过期时间刷新为完整窗口，
// 持续的请求流可以让窗口一直存活。
type naiveStrategy struct {
	store     CounterStore
	threshold Threshold
}

func (s *naiveStrategy) hit(ctx context.Context, key string, rule Rule) (hitResult, error) {
	ttl := rule.Interval.Duration()

	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		return hitResult{}, storeError("get", key, err)
	}

	if !found {
		if err := s.store.SetWithExpiry(ctx, key, "1", ttl); err != nil {
			return hitResult{}, storeError("set", key, err)
		}
		return hitResult{Count: 1, Created: true}, nil
	}

	count, err := parseCount(key, raw)
	if err != nil {
		return hitResult{}, err
	}
	if s.threshold.exceeded(count, rule.Allowed) {
		return hitResult{Count: count, Limited: true}, nil
	}

	count++
	if err := s.store.SetWithExpiry(ctx, key, formatCount(count), ttl); err != nil {
		return hitResult{}, storeError("set", key, err)
	}
	return hitResult{Count: count}, nil
}

// =============================================================================
// atomic：单次原子自增
// =============================================================================

// atomicStrategy 原子自增，消除读写之间的竞争
//
// 与 naive 的差异：
//   - 被拒绝的请求同样会使计数加一
//   - 过期时间只在计数创建时设置，放行不刷新（真正的固定窗口）
//
// 判定使用自增前的计数，放行/拒绝序列与 naive 相同。
type atomicStrategy struct {
	store     AtomicCounterStore
	threshold Threshold
}

func (s *atomicStrategy) hit(ctx context.Context, key string, rule Rule) (hitResult, error) {
	n, err := s.store.IncrementWithExpiryOnCreate(ctx, key, rule.Interval.Duration())
	if err != nil {
		return hitResult{}, storeError("incr", key, err)
	}
	return hitResult{
		Count:   n,
		Limited: s.threshold.exceeded(n-1, rule.Allowed),
		Created: n == 1,
	}, nil
}

// =============================================================================
// cas：读取 → 比较 → 比较并设置，冲突重试
// =============================================================================

// casRetryDelay CAS 冲突后的固定退避
const casRetryDelay = time.Millisecond

// casStrategy 乐观并发控制
//
// 保持 naive 的语义（放行刷新过期时间、拒绝不写入），
// 写回改为比较并设置；键在读写之间被修改时重新读取，最多 maxAttempts 次。
// 只对冲突重试，存储不可用等错误立即返回。
type casStrategy struct {
	store       CASCounterStore
	threshold   Threshold
	maxAttempts int
	delay       time.Duration
}

func (s *casStrategy) hit(ctx context.Context, key string, rule Rule) (hitResult, error) {
	ttl := rule.Interval.Duration()

	var res hitResult
	attempt := func() error {
		raw, found, err := s.store.Get(ctx, key)
		if err != nil {
			return storeError("get", key, err)
		}

		next := int64(1)
		if found {
			count, err := parseCount(key, raw)
			if err != nil {
				return err
			}
			if s.threshold.exceeded(count, rule.Allowed) {
				res = hitResult{Count: count, Limited: true}
				return nil
			}
			next = count + 1
		}

		if err := s.store.CompareAndSet(ctx, key, raw, found, formatCount(next), ttl); err != nil {
			return storeError("cas", key, err)
		}
		res = hitResult{Count: next, Created: !found}
		return nil
	}

	delay := s.delay
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(max(s.maxAttempts, 1))),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrCASConflict)
		}),
		retry.DelayType(func(_ uint, _ error, _ retry.DelayContext) time.Duration {
			return delay
		}),
		retry.LastErrorOnly(true),
	).Do(attempt)
	if err != nil {
		if errors.Is(err, ErrCASConflict) {
			return hitResult{}, fmt.Errorf("%w: key %q still contended after %d attempts",
				ErrCASConflict, key, s.maxAttempts)
		}
		return hitResult{}, err
	}
	return res, nil
}
