package xmetrics

import "context"

// Kind 跨度类型
type Kind int

const (
	// KindInternal 进程内操作
	KindInternal Kind = iota
	// KindServer 服务端处理
	KindServer
	// KindClient 客户端调用
	KindClient
)

// String 返回 Kind 的名称
func (k Kind) String() string {
	switch k {
	case KindServer:
		return "Server"
	case KindClient:
		return "Client"
	default:
		return "Internal"
	}
}

// Status 操作结果状态
type Status string

const (
	// StatusOK 成功
	StatusOK Status = "ok"
	// StatusError 失败
	StatusError Status = "error"
)

// Attr 观测属性
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 跨度创建参数
type SpanOptions struct {
	// Component 组件名，如 "xlimit"
	Component string
	// Operation 操作名，同时作为 span 名称
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 跨度结束时的结果
type Result struct {
	// Status 为空时由 Err 推导
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测跨度
type Span interface {
	// End 结束观测并记录结果
	End(result Result)
}

// Observer 观测接口
type Observer interface {
	// Start 开始一次观测跨度
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不做任何记录
type NoopObserver struct{}

// Start 原样返回 ctx 与空跨度
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空跨度
type NoopSpan struct{}

// End 空操作
func (NoopSpan) End(Result) {}

// Start 通过 observer 开始观测
//
// observer 为 nil 时返回空跨度。返回的 ctx 与 Span 总是非 nil，
// 自定义 Observer 返回 nil 时兜底为入参 ctx 与 NoopSpan。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}

func resolveStatus(result Result) Status {
	if result.Status != "" {
		return result.Status
	}
	if result.Err != nil {
		return StatusError
	}
	return StatusOK
}
