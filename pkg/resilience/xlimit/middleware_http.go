package xlimit

import (
	"net/http"
)

// HTTPMiddleware 创建 HTTP 限流中间件
//
// 示例:
//
//	limiter, _ := xlimit.NewRedis(redisClient, xlimit.WithRules(...))
//	mux := http.NewServeMux()
//	mux.Handle("/api/", xlimit.HTTPMiddleware(limiter)(apiHandler))
func HTTPMiddleware(limiter Checker, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("xlimit: HTTPMiddleware requires a non-nil Checker")
	}

	mopts := defaultMiddlewareOptions()
	for _, opt := range opts {
		opt(mopts)
	}
	mopts.sanitize()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mopts.SkipFunc != nil && mopts.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			dec, err := limiter.Check(r.Context(), mopts.Extractor.ExtractAll(r)...)
			if err != nil {
				mopts.ErrorHandler(w, r, err)
				return
			}
			if dec.Limited {
				mopts.DenyHandler(w, r, dec)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPMiddlewareFunc 创建 HTTP 限流中间件（函数式）
// 适用于需要 http.HandlerFunc 的场景
func HTTPMiddlewareFunc(limiter Checker, opts ...MiddlewareOption) func(http.HandlerFunc) http.HandlerFunc {
	middleware := HTTPMiddleware(limiter, opts...)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}
