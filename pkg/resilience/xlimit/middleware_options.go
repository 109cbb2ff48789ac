package xlimit

import (
	"net/http"
	"strconv"
)

// MiddlewareOptions HTTP 中间件配置选项
type MiddlewareOptions struct {
	// Extractor 描述符提取器
	Extractor *DescriptorExtractor

	// DenyHandler 自定义拒绝处理器
	// 当请求被限流时调用
	DenyHandler func(w http.ResponseWriter, r *http.Request, dec Decision)

	// ErrorHandler 限流器返回错误时调用
	// 默认返回 503；需要 fail-open 时可直接调用下游处理器，或使用 PolicyLimiter
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// SkipFunc 跳过函数
	// 返回 true 时跳过限流检查
	SkipFunc func(r *http.Request) bool
}

// MiddlewareOption 中间件选项函数
type MiddlewareOption func(*MiddlewareOptions)

func defaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{
		Extractor:    DefaultDescriptorExtractor(),
		DenyHandler:  defaultDenyHandler,
		ErrorHandler: defaultErrorHandler,
	}
}

// sanitize 将被显式置空的字段恢复为默认值
func (o *MiddlewareOptions) sanitize() {
	if o.Extractor == nil {
		o.Extractor = DefaultDescriptorExtractor()
	}
	if o.DenyHandler == nil {
		o.DenyHandler = defaultDenyHandler
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = defaultErrorHandler
	}
}

func defaultDenyHandler(w http.ResponseWriter, _ *http.Request, dec Decision) {
	if dec.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(dec.RetryAfter.Seconds()), 10))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	writeResponse(w, []byte("Too Many Requests"))
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	w.WriteHeader(http.StatusServiceUnavailable)
	writeResponse(w, []byte("Rate Limiter Unavailable"))
}

// writeResponse 写入 HTTP 响应体。
// 写入失败时不返回错误，因为此时连接可能已断开，无法进行补救。
func writeResponse(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		return
	}
}

// WithExtractor 设置描述符提取器
func WithExtractor(extractor *DescriptorExtractor) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.Extractor = extractor
	}
}

// WithDenyHandler 设置自定义拒绝处理器
func WithDenyHandler(handler func(w http.ResponseWriter, r *http.Request, dec Decision)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.DenyHandler = handler
	}
}

// WithErrorHandler 设置错误处理器
func WithErrorHandler(handler func(w http.ResponseWriter, r *http.Request, err error)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.ErrorHandler = handler
	}
}

// WithSkipFunc 设置跳过函数
func WithSkipFunc(skipFunc func(r *http.Request) bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.SkipFunc = skipFunc
	}
}
