package xlimit

import (
	"net"
	"net/http"
	"strings"
)

const (
	defaultAccountHeader     = "X-Account-Id"
	defaultRequestTypeHeader = "X-Request-Type"
)

// DescriptorExtractor 从 HTTP 请求中提取描述符
type DescriptorExtractor struct {
	accountHeader     string
	requestTypeHeader string
	trustForwarded    bool
	extra             func(*http.Request) []Descriptor
}

// DescriptorExtractorOption 描述符提取器选项
type DescriptorExtractorOption func(*DescriptorExtractor)

// DefaultDescriptorExtractor 创建默认的描述符提取器
//
//   - accountId：X-Account-Id header
//   - clientIp：RemoteAddr 的主机部分；开启 WithTrustForwarded 后
//     依次取 X-Forwarded-For 第一跳、X-Real-IP
//   - requestType：X-Request-Type header，缺省为请求方法
func DefaultDescriptorExtractor() *DescriptorExtractor {
	return &DescriptorExtractor{
		accountHeader:     defaultAccountHeader,
		requestTypeHeader: defaultRequestTypeHeader,
	}
}

// NewDescriptorExtractor 创建自定义的描述符提取器
func NewDescriptorExtractor(opts ...DescriptorExtractorOption) *DescriptorExtractor {
	e := DefaultDescriptorExtractor()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithAccountHeader 设置账户 ID 的 header 名称
func WithAccountHeader(header string) DescriptorExtractorOption {
	return func(e *DescriptorExtractor) {
		if header != "" {
			e.accountHeader = header
		}
	}
}

// WithRequestTypeHeader 设置请求类型的 header 名称
func WithRequestTypeHeader(header string) DescriptorExtractorOption {
	return func(e *DescriptorExtractor) {
		if header != "" {
			e.requestTypeHeader = header
		}
	}
}

// WithTrustForwarded 设置是否信任 X-Forwarded-For / X-Real-IP，默认不信任
// 只应在受信的反向代理之后开启，否则客户端可以伪造 header 绕过 clientIp 配额。
func WithTrustForwarded(trust bool) DescriptorExtractorOption {
	return func(e *DescriptorExtractor) {
		e.trustForwarded = trust
	}
}

// WithExtraDescriptors 追加额外描述符，与主描述符一起按逻辑或判定
func WithExtraDescriptors(fn func(*http.Request) []Descriptor) DescriptorExtractorOption {
	return func(e *DescriptorExtractor) {
		e.extra = fn
	}
}

// Extract 从请求中提取主描述符；空值维度视为未设置
func (e *DescriptorExtractor) Extract(r *http.Request) Descriptor {
	if r == nil {
		return Descriptor{}
	}

	requestType := r.Header.Get(e.requestTypeHeader)
	if requestType == "" {
		requestType = r.Method
	}
	return Descriptor{
		AccountID:   OptFrom(strings.TrimSpace(r.Header.Get(e.accountHeader))),
		ClientIP:    OptFrom(e.clientIP(r)),
		RequestType: OptFrom(requestType),
	}
}

// ExtractAll 返回主描述符与额外描述符
func (e *DescriptorExtractor) ExtractAll(r *http.Request) []Descriptor {
	out := []Descriptor{e.Extract(r)}
	if e.extra != nil && r != nil {
		out = append(out, e.extra(r)...)
	}
	return out
}

func (e *DescriptorExtractor) clientIP(r *http.Request) string {
	if e.trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
