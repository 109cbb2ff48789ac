package xlimit

import (
	"fmt"
	"strings"
	"time"
)

// TimeInterval 限流窗口长度
type TimeInterval string

const (
	// IntervalMinute 一分钟窗口（60 秒）
	IntervalMinute TimeInterval = "MINUTE"
	// IntervalHour 一小时窗口（3600 秒）
	IntervalHour TimeInterval = "HOUR"
)

// ParseTimeInterval 解析窗口长度（大小写不敏感）
func ParseTimeInterval(s string) (TimeInterval, error) {
	switch TimeInterval(strings.ToUpper(strings.TrimSpace(s))) {
	case IntervalMinute:
		return IntervalMinute, nil
	case IntervalHour:
		return IntervalHour, nil
	default:
		return "", fmt.Errorf("%w: unknown time interval %q", ErrInvalidRule, s)
	}
}

// IsValid 检查窗口长度是否有效
func (t TimeInterval) IsValid() bool {
	return t == IntervalMinute || t == IntervalHour
}

// Seconds 返回窗口秒数：MINUTE 为 60，其余为 3600
func (t TimeInterval) Seconds() int64 {
	if t == IntervalMinute {
		return 60
	}
	return 60 * 60
}

// Duration 返回窗口时长
func (t TimeInterval) Duration() time.Duration {
	return time.Duration(t.Seconds()) * time.Second
}

// Rule 限流规则
//
// 每个维度未设置（或为空字符串）表示不约束该维度。
// 三个维度都不约束的规则为通用规则，作为兜底。
type Rule struct {
	// Name 规则名称，用于日志和指标；为空时自动生成
	Name string

	AccountID   Opt
	ClientIP    Opt
	RequestType Opt

	// Allowed 窗口内允许的请求数
	Allowed int

	// Interval 窗口长度
	Interval TimeInterval
}

// IsGeneral 是否为通用（通配）规则
func (r Rule) IsGeneral() bool {
	return r.AccountID.isWildcard() && r.ClientIP.isWildcard() && r.RequestType.isWildcard()
}

// Validate 验证规则配置是否有效
func (r Rule) Validate() error {
	if r.Allowed <= 0 {
		return fmt.Errorf("%w: allowed number of requests must be positive", ErrInvalidRule)
	}
	if !r.Interval.IsValid() {
		return fmt.Errorf("%w: unknown time interval %q", ErrInvalidRule, r.Interval)
	}
	return nil
}

// Label 返回规则的可读标识，用于日志和指标
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.IsGeneral() {
		return "general"
	}
	var parts []string
	if !r.AccountID.isWildcard() {
		parts = append(parts, "accountId="+r.AccountID.value)
	}
	if !r.ClientIP.isWildcard() {
		parts = append(parts, "clientIp="+r.ClientIP.value)
	}
	if !r.RequestType.isWildcard() {
		parts = append(parts, "requestType="+r.RequestType.value)
	}
	return strings.Join(parts, ",")
}

// fields 按固定顺序返回维度：accountId, clientIp, requestType
func (r Rule) fields() [3]Opt {
	return [3]Opt{r.AccountID, r.ClientIP, r.RequestType}
}

// GeneralRule 创建通用规则
func GeneralRule(allowed int, interval TimeInterval) Rule {
	return Rule{Allowed: allowed, Interval: interval}
}

// RuleBuilder 规则构建器，支持链式调用
type RuleBuilder struct {
	rule Rule
}

// NewRuleBuilder 创建规则构建器，默认窗口为一分钟
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{rule: Rule{Interval: IntervalMinute}}
}

// Name 设置规则名称
func (b *RuleBuilder) Name(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

// AccountID 约束账户
func (b *RuleBuilder) AccountID(v string) *RuleBuilder {
	b.rule.AccountID = Some(v)
	return b
}

// ClientIP 约束客户端 IP
func (b *RuleBuilder) ClientIP(v string) *RuleBuilder {
	b.rule.ClientIP = Some(v)
	return b
}

// RequestType 约束请求类型
func (b *RuleBuilder) RequestType(v string) *RuleBuilder {
	b.rule.RequestType = Some(v)
	return b
}

// Allowed 设置配额
func (b *RuleBuilder) Allowed(n int) *RuleBuilder {
	b.rule.Allowed = n
	return b
}

// Interval 设置窗口长度
func (b *RuleBuilder) Interval(t TimeInterval) *RuleBuilder {
	b.rule.Interval = t
	return b
}

// Build 构建规则
func (b *RuleBuilder) Build() Rule {
	return b.rule
}
