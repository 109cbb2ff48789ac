package xlimit

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xwindow/pkg/observability/xlog"
	"github.com/omeyang/xwindow/pkg/observability/xmetrics"
)

// options 内部配置结构
type options struct {
	config         Config
	logger         xlog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	observer       xmetrics.Observer
	metrics        *Metrics
	onNoRule       func(d Descriptor)
	onLimit        func(d Decision)
	initErr        error // 配置加载阶段的错误，延迟到 New 时返回
}

// validate 验证选项并返回初始化阶段收集的错误
// 设计决策: Option 函数签名不支持返回错误，因此将配置加载错误
// 暂存在 initErr 中，在 New 构造时统一检查。
func (o *options) validate() error {
	if o.initErr != nil {
		return o.initErr
	}
	return o.config.Validate()
}

// resolveObserver 确定观察者：显式 Observer 优先，其次由 TracerProvider 创建
func (o *options) resolveObserver() (xmetrics.Observer, error) {
	if o.observer != nil {
		return o.observer, nil
	}
	if o.tracerProvider == nil {
		return xmetrics.NoopObserver{}, nil
	}
	opts := []xmetrics.Option{
		xmetrics.WithInstrumentationName(instrumentationName),
		xmetrics.WithTracerProvider(o.tracerProvider),
	}
	if o.meterProvider != nil {
		opts = append(opts, xmetrics.WithMeterProvider(o.meterProvider))
	}
	return xmetrics.NewOTelObserver(opts...)
}

// Option 配置选项函数
type Option func(*options)

func defaultOptions() *options {
	return &options{
		config: DefaultConfig(),
	}
}

// WithRules 追加限流规则，顺序即匹配顺序
func WithRules(rules ...Rule) Option {
	return func(o *options) {
		o.config.Rules = append(o.config.Rules, rules...)
	}
}

// WithConfig 使用完整配置覆盖
func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config.Clone()
	}
}

// WithConfigFile 从文件加载配置覆盖当前配置
// 加载失败时错误在 New 中返回，避免在无规则状态下静默放行。
func WithConfigFile(path, section string) Option {
	return func(o *options) {
		cfg, err := LoadConfigFile(path, section)
		if err != nil {
			o.initErr = fmt.Errorf("xlimit: load config file: %w", err)
			return
		}
		o.config = cfg
	}
}

// WithKeyPrefix 设置存储键前缀，默认为 "ratelimit:"
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.config.KeyPrefix = prefix
	}
}

// WithStrategy 设置计数策略，默认 StrategyNaive
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.config.Strategy = s
	}
}

// WithKeyScope 设置窗口键构造范围，默认 KeyScopeDescriptor
func WithKeyScope(scope KeyScope) Option {
	return func(o *options) {
		o.config.KeyScope = scope
	}
}

// WithThreshold 设置超限比较方式，默认 ThresholdQuota
func WithThreshold(t Threshold) Option {
	return func(o *options) {
		o.config.Threshold = t
	}
}

// WithCASMaxAttempts 设置 CAS 策略的最大尝试次数
func WithCASMaxAttempts(n int) Option {
	return func(o *options) {
		o.config.CASMaxAttempts = n
	}
}

// WithLogger 设置日志记录器；不设置时不输出日志
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider
// 如果不设置，不会收集指标
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 OpenTelemetry TracerProvider
// 限流器据此创建 OTel Observer；设置了 WithObserver 时忽略。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithObserver 设置可观测性观察者，每次 Check 对应一个跨度
// 如果不设置也没有 TracerProvider，不做追踪。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithOnNoRule 设置描述符没有适用规则时的回调
func WithOnNoRule(fn func(d Descriptor)) Option {
	return func(o *options) {
		o.onNoRule = fn
	}
}

// WithOnLimit 设置描述符超限时的回调
func WithOnLimit(fn func(d Decision)) Option {
	return func(o *options) {
		o.onLimit = fn
	}
}
