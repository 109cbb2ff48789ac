package xlimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xwindow/pkg/observability/xlog"
	"github.com/omeyang/xwindow/pkg/observability/xmetrics"
)

// instrumentationName OTel instrumentation 名称
const instrumentationName = "github.com/omeyang/xwindow/pkg/resilience/xlimit"

// RateLimiter 限流判定接口
//
// 实现应该是并发安全的。
type RateLimiter interface {
	// ShouldLimit 判定一组描述符是否应被限流
	//
	// 描述符之间是逻辑或：任一描述符超限即返回 true，
	// 后续描述符不再判定，也不会修改它们的计数。
	// 单个描述符出错不影响其余描述符的判定；只要有描述符超限，
	// 结果就是 (true, nil)。没有描述符超限且存在出错描述符时返回错误，
	// 此时返回值不代表判定结果，由调用方决定放行还是拒绝。
	ShouldLimit(ctx context.Context, descriptors ...Descriptor) (bool, error)
}

// Checker 在 RateLimiter 的基础上返回决定结果的判定，
// 供需要规则、窗口等细节的调用方（如 HTTP 中间件）使用
type Checker interface {
	RateLimiter

	// Check 语义与 ShouldLimit 相同，返回超限（或最后一个）描述符的判定
	Check(ctx context.Context, descriptors ...Descriptor) (Decision, error)
}

// Limiter 固定窗口限流器
//
// 对每个描述符：匹配规则 → 计算窗口键 → 按策略读写共享计数。
// 没有适用规则的描述符不限流，也不访问存储。
type Limiter struct {
	store    CounterStore
	matcher  *RuleMatcher
	strategy windowStrategy
	config   Config
	logger   xlog.Logger
	observer xmetrics.Observer
	metrics  *Metrics
	onNoRule func(d Descriptor)
	onLimit  func(d Decision)
	closed   atomic.Bool
}

// New 创建限流器
//
// 选择 StrategyAtomic 或 StrategyCAS 时，store 必须具备相应能力，
// 否则返回 ErrAtomicUnsupported 或 ErrCASUnsupported。
func New(store CounterStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	strategy, err := newStrategy(store, cfg.config)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.meterProvider)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = xlog.Discard()
	}
	observer, err := cfg.resolveObserver()
	if err != nil {
		return nil, err
	}

	config := cfg.config.Clone()
	return &Limiter{
		store:    store,
		matcher:  NewRuleMatcher(config.Rules),
		strategy: strategy,
		config:   config,
		logger:   logger.With(slog.String("component", "xlimit")),
		observer: observer,
		metrics:  metrics,
		onNoRule: cfg.onNoRule,
		onLimit:  cfg.onLimit,
	}, nil
}

// NewRedis 创建以 Redis 为共享存储的限流器
func NewRedis(rdb redis.UniversalClient, opts ...Option) (*Limiter, error) {
	store, err := NewRedisStore(rdb)
	if err != nil {
		return nil, err
	}
	return New(store, opts...)
}

// ShouldLimit 判定一组描述符是否应被限流
//
// 重复的描述符只判定一次，其余按首次出现的顺序依次判定，
// 遇到第一个超限的描述符即返回。
func (l *Limiter) ShouldLimit(ctx context.Context, descriptors ...Descriptor) (bool, error) {
	dec, err := l.Check(ctx, descriptors...)
	if err != nil {
		return false, err
	}
	return dec.Limited, nil
}

// Check 与 ShouldLimit 相同，但返回决定结果的判定
//
// 超限时返回超限描述符的判定；都未超限但有描述符出错时，返回第一个
// 出错描述符的判定与全部错误（多个错误以 errors.Join 合并）；
// 其余情况返回最后一个判定，描述符为空时返回零值。
func (l *Limiter) Check(ctx context.Context, descriptors ...Descriptor) (dec Decision, err error) {
	ctx, span := xmetrics.Start(ctx, l.observer, xmetrics.SpanOptions{
		Component: "xlimit",
		Operation: "should_limit",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.Int("xlimit.descriptors", len(descriptors)),
			xmetrics.String("xlimit.strategy", string(l.config.Strategy)),
		},
	})
	defer func() {
		attrs := []xmetrics.Attr{xmetrics.Bool("xlimit.limited", dec.Limited)}
		if dec.Limited {
			attrs = append(attrs, xmetrics.String("xlimit.rule", dec.Rule.Label()))
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}()

	return l.evaluateAll(ctx, dedupe(descriptors))
}

// evaluateAll 依次判定描述符
//
// 出错的描述符只影响自身，继续判定其余描述符；限流器关闭或 ctx 结束时停止。
func (l *Limiter) evaluateAll(ctx context.Context, descriptors []Descriptor) (Decision, error) {
	var (
		last   Decision
		failed Decision
		errs   []error
	)
	for _, d := range descriptors {
		dec, err := l.Evaluate(ctx, d)
		if err != nil {
			if len(errs) == 0 {
				failed = dec
			}
			errs = append(errs, err)
			if errors.Is(err, ErrLimiterClosed) || ctx.Err() != nil {
				break
			}
			continue
		}
		if dec.Limited {
			return dec, nil
		}
		last = dec
	}

	switch len(errs) {
	case 0:
		return last, nil
	case 1:
		return failed, errs[0]
	default:
		return failed, errors.Join(errs...)
	}
}

// Evaluate 判定单个描述符并返回详细结果
func (l *Limiter) Evaluate(ctx context.Context, d Descriptor) (Decision, error) {
	dec := Decision{Descriptor: d}
	if l.closed.Load() {
		return dec, ErrLimiterClosed
	}

	start := time.Now()
	rule, ok := l.matcher.Match(d)
	if !ok {
		l.logger.Info(ctx, "no rate limit rule for descriptor",
			slog.String("descriptor", d.String()))
		l.metrics.RecordNoRule(ctx)
		if l.onNoRule != nil {
			l.onNoRule(d)
		}
		return dec, nil
	}

	dec.Rule = rule
	dec.Matched = true
	dec.Key = l.config.KeyPrefix + WindowKey(d, rule, l.config.KeyScope)

	res, err := l.strategy.hit(ctx, dec.Key, rule)
	if err != nil {
		l.logger.Warn(ctx, "rate limit counter unavailable",
			append(dec.LogAttrs(), slog.Any("error", err))...)
		l.metrics.RecordStoreError(ctx, l.config.Strategy, classifyError(err))
		return dec, err
	}

	dec.Count = res.Count
	dec.Limited = res.Limited
	l.metrics.RecordCheck(ctx, l.config.Strategy, rule.Label(), res.Limited, time.Since(start))

	if !res.Limited {
		l.logger.Debug(ctx, "rate limit accepted", dec.LogAttrs()...)
		return dec, nil
	}

	dec.RetryAfter = rule.Interval.Duration()
	l.logger.Warn(ctx, "rate limit exceeded", dec.LogAttrs()...)
	if l.onLimit != nil {
		l.onLimit(dec)
	}
	return dec, nil
}

// Rules 返回规则副本，具体规则在前、通用规则在后
func (l *Limiter) Rules() []Rule {
	return l.matcher.Rules()
}

// Strategy 返回计数策略
func (l *Limiter) Strategy() Strategy {
	return l.config.Strategy
}

// Config 返回配置副本
func (l *Limiter) Config() Config {
	return l.config.Clone()
}

// Close 关闭限流器，之后的判定返回 ErrLimiterClosed
//
// 不关闭存储，存储的生命周期由调用方管理。重复调用是安全的。
func (l *Limiter) Close() error {
	l.closed.Store(true)
	return nil
}

var _ Checker = (*Limiter)(nil)
