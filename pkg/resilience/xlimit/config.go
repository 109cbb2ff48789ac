package xlimit

import (
	"fmt"
	"slices"
)

// Strategy 计数器读写策略
type Strategy string

const (
	// StrategyNaive 读取、比较、写回三步，非原子
	//
	// 已知一致性缺口：并发请求可能读到同一个值并写回同一个 v+1，
	// 导致少计数。保留此策略是为了与既有部署的计数语义一致。
	StrategyNaive Strategy = "naive"

	// StrategyAtomic 单次原子自增，仅在计数从 0 变为 1 时设置过期
	StrategyAtomic Strategy = "atomic"

	// StrategyCAS 读取后以比较并设置写回，冲突时重试
	StrategyCAS Strategy = "cas"
)

// IsValid 检查策略是否有效
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyNaive, StrategyAtomic, StrategyCAS:
		return true
	default:
		return false
	}
}

// KeyScope 窗口键的构造范围
type KeyScope string

const (
	// KeyScopeDescriptor 使用描述符上所有已设置的维度构造键（默认）
	//
	// 与匹配到哪条规则无关：两个描述符命中同一条只约束 clientIp 的规则，
	// 只要 accountId 不同，就落在不同的计数器上。
	KeyScopeDescriptor KeyScope = "descriptor"

	// KeyScopeRule 只使用规则约束的维度构造键
	//
	// 命中同一规则的请求共享计数器；通用规则下所有请求共享一个计数器。
	KeyScopeRule KeyScope = "rule"
)

// IsValid 检查键范围是否有效
func (s KeyScope) IsValid() bool {
	return s == KeyScopeDescriptor || s == KeyScopeRule
}

// Threshold 判定超限的比较方式
type Threshold string

const (
	// ThresholdQuota 窗口内恰好放行 Allowed 个请求：已有计数 >= Allowed 时拒绝（默认）
	ThresholdQuota Threshold = "quota"

	// ThresholdLegacy 已有计数 > Allowed 时才拒绝，窗口内最多放行 Allowed+1 个请求
	ThresholdLegacy Threshold = "legacy"
)

// IsValid 检查比较方式是否有效
func (t Threshold) IsValid() bool {
	return t == ThresholdQuota || t == ThresholdLegacy
}

// exceeded 根据写入前的计数判断是否超限
func (t Threshold) exceeded(count int64, allowed int) bool {
	if t == ThresholdLegacy {
		return count > int64(allowed)
	}
	return count >= int64(allowed)
}

const (
	defaultKeyPrefix      = "ratelimit:"
	defaultCASMaxAttempts = 5
)

// Config 限流器配置
type Config struct {
	// KeyPrefix 存储键前缀，默认为 "ratelimit:"
	KeyPrefix string

	// Strategy 计数器读写策略，默认 naive
	Strategy Strategy

	// KeyScope 窗口键构造范围，默认 descriptor
	KeyScope KeyScope

	// Threshold 超限比较方式，默认 quota
	Threshold Threshold

	// CASMaxAttempts CAS 策略的最大尝试次数（含首次）
	CASMaxAttempts int

	// Rules 有序规则列表，顺序即"第一个匹配"的判定顺序
	Rules []Rule
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		KeyPrefix:      defaultKeyPrefix,
		Strategy:       StrategyNaive,
		KeyScope:       KeyScopeDescriptor,
		Threshold:      ThresholdQuota,
		CASMaxAttempts: defaultCASMaxAttempts,
	}
}

// Validate 验证配置是否有效
//
// 至多允许一条通用规则。
func (c Config) Validate() error {
	if !c.Strategy.IsValid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if !c.KeyScope.IsValid() {
		return fmt.Errorf("%w: unknown key scope %q", ErrInvalidConfig, c.KeyScope)
	}
	if !c.Threshold.IsValid() {
		return fmt.Errorf("%w: unknown threshold %q", ErrInvalidConfig, c.Threshold)
	}
	if c.Strategy == StrategyCAS && c.CASMaxAttempts <= 0 {
		return fmt.Errorf("%w: cas_max_attempts must be positive", ErrInvalidConfig)
	}

	general := -1
	for i, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		if rule.IsGeneral() {
			if general >= 0 {
				return fmt.Errorf("%w: rules[%d] is a second general rule (first at rules[%d])",
					ErrInvalidConfig, i, general)
			}
			general = i
		}
	}
	return nil
}

// Clone 创建配置的深拷贝
func (c Config) Clone() Config {
	clone := c
	clone.Rules = slices.Clone(c.Rules)
	return clone
}
