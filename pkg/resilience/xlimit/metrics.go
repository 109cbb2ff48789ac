package xlimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	// metricNameRequestsTotal 已判定的描述符总数（匹配到规则）
	metricNameRequestsTotal = "xwindow.requests.total"
	// metricNameLimitedTotal 超限的描述符数
	metricNameLimitedTotal = "xwindow.limited.total"
	// metricNameNoRuleTotal 没有适用规则的描述符数
	metricNameNoRuleTotal = "xwindow.no_rule.total"
	// metricNameStoreErrorsTotal 存储访问失败次数
	metricNameStoreErrorsTotal = "xwindow.store_errors.total"
	// metricNameFallbackTotal 失败策略接管次数
	metricNameFallbackTotal = "xwindow.fallback.total"
	// metricNameCheckDuration 单个描述符判定耗时
	metricNameCheckDuration = "xwindow.check.duration"
)

// Metrics 限流指标收集器
type Metrics struct {
	requestsTotal    metric.Int64Counter
	limitedTotal     metric.Int64Counter
	noRuleTotal      metric.Int64Counter
	storeErrorsTotal metric.Int64Counter
	fallbackTotal    metric.Int64Counter
	checkDuration    metric.Float64Histogram
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xwindow",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.requestsTotal, metricNameRequestsTotal, "已判定的描述符总数", "{descriptor}"},
		{&m.limitedTotal, metricNameLimitedTotal, "超限的描述符数", "{descriptor}"},
		{&m.noRuleTotal, metricNameNoRuleTotal, "没有适用规则的描述符数", "{descriptor}"},
		{&m.storeErrorsTotal, metricNameStoreErrorsTotal, "计数存储访问失败次数", "{error}"},
		{&m.fallbackTotal, metricNameFallbackTotal, "失败策略接管次数", "{fallback}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	m.checkDuration, err = meter.Float64Histogram(
		metricNameCheckDuration,
		metric.WithDescription("单个描述符判定耗时"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0,
		),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordCheck 记录一次判定
// strategy: 计数策略
// rule: 规则标签
func (m *Metrics) RecordCheck(ctx context.Context, strategy Strategy, rule string, limited bool, duration time.Duration) {
	if m == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String("strategy", string(strategy)),
		attribute.String("rule", rule),
		attribute.Bool("limited", limited),
	)

	m.requestsTotal.Add(metricsCtx, 1, attrs)
	if limited {
		m.limitedTotal.Add(metricsCtx, 1, attrs)
	}
	m.checkDuration.Record(metricsCtx, duration.Seconds(), attrs)
}

// RecordNoRule 记录没有适用规则的描述符
func (m *Metrics) RecordNoRule(ctx context.Context) {
	if m == nil {
		return
	}
	m.noRuleTotal.Add(context.WithoutCancel(ctx), 1)
}

// RecordStoreError 记录存储访问失败
// reason 由 classifyError 归类，保持低基数
func (m *Metrics) RecordStoreError(ctx context.Context, strategy Strategy, reason string) {
	if m == nil {
		return
	}
	m.storeErrorsTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("strategy", string(strategy)),
		attribute.String("reason", reason),
	))
}

// RecordFallback 记录失败策略接管
func (m *Metrics) RecordFallback(ctx context.Context, policy FailurePolicy, reason string) {
	if m == nil {
		return
	}
	m.fallbackTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("policy", string(policy)),
		attribute.String("reason", reason),
	))
}
