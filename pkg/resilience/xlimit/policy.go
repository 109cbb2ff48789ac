package xlimit

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xwindow/pkg/observability/xlog"
)

// FailurePolicy 计数存储不可用时的处理方式
type FailurePolicy string

const (
	// FailOpen 存储不可用时放行
	FailOpen FailurePolicy = "open"
	// FailClosed 存储不可用时拒绝
	FailClosed FailurePolicy = "closed"
)

// IsValid 检查策略是否有效
func (p FailurePolicy) IsValid() bool {
	return p == FailOpen || p == FailClosed
}

// FailureFunc 自定义失败处理
//
// 参数为触发失败的描述符集合与原始错误，返回值语义与 ShouldLimit 相同。
type FailureFunc func(ctx context.Context, descriptors []Descriptor, err error) (bool, error)

// PolicyLimiter 为限流器加上失败策略
//
// 核心限流器只报告存储不可用，不做放行或拒绝的决定；
// 由调用层用 PolicyLimiter 显式选择。计数值损坏按同一策略处理，
// 其余错误（如 ErrLimiterClosed）原样返回。
type PolicyLimiter struct {
	next    Checker
	policy  FailurePolicy
	custom  FailureFunc
	logger  xlog.Logger
	metrics *Metrics
}

// PolicyOption PolicyLimiter 配置选项
type PolicyOption func(*policyConfig)

type policyConfig struct {
	custom        FailureFunc
	logger        xlog.Logger
	meterProvider metric.MeterProvider
}

// WithFailureFunc 设置自定义失败处理，优先于 FailurePolicy
func WithFailureFunc(fn FailureFunc) PolicyOption {
	return func(c *policyConfig) {
		c.custom = fn
	}
}

// WithPolicyLogger 设置日志记录器
func WithPolicyLogger(logger xlog.Logger) PolicyOption {
	return func(c *policyConfig) {
		c.logger = logger
	}
}

// WithPolicyMeterProvider 设置 MeterProvider，用于记录 xwindow.fallback.total
func WithPolicyMeterProvider(mp metric.MeterProvider) PolicyOption {
	return func(c *policyConfig) {
		c.meterProvider = mp
	}
}

// NewPolicyLimiter 创建带失败策略的限流器
func NewPolicyLimiter(next Checker, policy FailurePolicy, opts ...PolicyOption) (*PolicyLimiter, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: nil limiter", ErrInvalidConfig)
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("%w: unknown failure policy %q", ErrInvalidConfig, policy)
	}

	cfg := &policyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	metrics, err := NewMetrics(cfg.meterProvider)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		logger = xlog.Discard()
	}

	return &PolicyLimiter{
		next:    next,
		policy:  policy,
		custom:  cfg.custom,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// ShouldLimit 判定一组描述符，存储失败时按策略给出结果
func (p *PolicyLimiter) ShouldLimit(ctx context.Context, descriptors ...Descriptor) (bool, error) {
	dec, err := p.Check(ctx, descriptors...)
	if err != nil {
		return false, err
	}
	return dec.Limited, nil
}

// Check 判定一组描述符，存储失败时按策略给出结果
func (p *PolicyLimiter) Check(ctx context.Context, descriptors ...Descriptor) (Decision, error) {
	dec, err := p.next.Check(ctx, descriptors...)
	if err == nil || !p.handles(err) {
		return dec, err
	}

	reason := classifyError(err)
	p.logger.Warn(ctx, "rate limiter failure policy applied",
		slog.String("policy", string(p.policy)),
		slog.String("reason", reason),
		slog.Any("error", err),
	)
	p.metrics.RecordFallback(ctx, p.policy, reason)

	if p.custom != nil {
		limited, cerr := p.custom(ctx, descriptors, err)
		dec.Limited = limited && cerr == nil
		return dec, cerr
	}

	switch p.policy {
	case FailClosed:
		dec.Limited = true
		if dec.Matched {
			dec.RetryAfter = dec.Rule.Interval.Duration()
		}
	default:
		dec.Limited = false
	}
	return dec, nil
}

// Policy 返回失败策略
func (p *PolicyLimiter) Policy() FailurePolicy {
	return p.policy
}

// handles 存储不可用与计数值损坏由策略接管
func (p *PolicyLimiter) handles(err error) bool {
	return IsStoreError(err) || IsMalformedCounter(err)
}

var _ Checker = (*PolicyLimiter)(nil)
