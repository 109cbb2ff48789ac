package xlimit

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/sony/gobreaker/v2"
)

// =============================================================================
// 预定义错误
// =============================================================================

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrStoreUnavailable 表示计数存储不可用（网络、超时、连接失败、熔断）
	ErrStoreUnavailable = errors.New("xlimit: counter store unavailable")

	// ErrMalformedCounter 表示存储中的计数值不是十进制整数
	ErrMalformedCounter = errors.New("xlimit: malformed counter value")

	// ErrInvalidRule 表示限流规则无效
	ErrInvalidRule = errors.New("xlimit: invalid rule")

	// ErrInvalidConfig 表示限流器配置无效
	ErrInvalidConfig = errors.New("xlimit: invalid config")

	// ErrNilStore 表示未提供计数存储
	ErrNilStore = errors.New("xlimit: nil counter store")

	// ErrAtomicUnsupported 表示存储不支持原子自增
	ErrAtomicUnsupported = errors.New("xlimit: store does not support atomic increment")

	// ErrCASUnsupported 表示存储不支持比较并设置
	ErrCASUnsupported = errors.New("xlimit: store does not support compare-and-set")

	// ErrCASConflict 表示乐观写入时键已被其他调用方修改
	ErrCASConflict = errors.New("xlimit: compare-and-set conflict")

	// ErrLimiterClosed 表示限流器已关闭
	ErrLimiterClosed = errors.New("xlimit: limiter closed")

	// ErrConfigNotFound 表示配置文件不存在
	ErrConfigNotFound = errors.New("xlimit: config not found")
)

// =============================================================================
// 错误类型
// =============================================================================

// StoreError 计数存储访问失败
//
// 同时匹配 ErrStoreUnavailable 和底层原因，
// 调用方据此决定 fail-open 还是 fail-closed。
type StoreError struct {
	// Op 失败的存储操作，如 get、set、incr、cas
	Op string
	// Key 访问的存储键
	Key string
	// Err 底层错误
	Err error
}

// Error 实现 error 接口
func (e *StoreError) Error() string {
	return fmt.Sprintf("xlimit: store %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap 返回 ErrStoreUnavailable 与底层错误
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// CounterError 存储中的计数值无法解析
type CounterError struct {
	// Key 存储键
	Key string
	// Raw 读到的原始值，服务端自增失败时可能为空
	Raw string
	// Err 解析或服务端错误
	Err error
}

// Error 实现 error 接口
func (e *CounterError) Error() string {
	return fmt.Sprintf("xlimit: malformed counter at %q (raw=%q): %v", e.Key, e.Raw, e.Err)
}

// Unwrap 返回 ErrMalformedCounter 与底层错误
func (e *CounterError) Unwrap() []error {
	return []error{ErrMalformedCounter, e.Err}
}

func storeError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	var ce *CounterError
	if errors.As(err, &ce) || errors.Is(err, ErrCASConflict) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// =============================================================================
// 错误检查函数
// =============================================================================

// storeRelatedErrors 视为存储不可用的已知错误
var storeRelatedErrors = []error{
	ErrStoreUnavailable,
	gobreaker.ErrOpenState,
	gobreaker.ErrTooManyRequests,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsStoreError 检查是否是存储不可用错误
//
// 使用错误链检查，而不是字符串匹配。
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range storeRelatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return isNetworkError(err)
}

// IsMalformedCounter 检查是否是计数值损坏错误
func IsMalformedCounter(err error) bool {
	return errors.Is(err, ErrMalformedCounter)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// classifyError 将错误归类为低基数标签，用于指标
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case IsMalformedCounter(err):
		return "malformed_counter"
	case errors.Is(err, ErrCASConflict):
		return "cas_conflict"
	case isTimeout(err):
		return "timeout"
	case IsStoreError(err):
		return "unavailable"
	default:
		return "other"
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ETIMEDOUT)
}
