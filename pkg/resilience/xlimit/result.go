package xlimit

import (
	"log/slog"
	"time"
)

// Decision 单个描述符的判定结果
type Decision struct {
	// Descriptor 被判定的描述符
	Descriptor Descriptor

	// Rule 匹配的规则，Matched 为 false 时为零值
	Rule Rule

	// Matched 是否找到适用规则；未匹配时不限流，也不访问存储
	Matched bool

	// Key 完整的存储键（含前缀）
	Key string

	// Count 判定时的计数
	//   - naive/cas：放行时为写回后的值，拒绝时为读到的值
	//   - atomic：自增后的值
	Count int64

	// Limited 是否超限
	Limited bool

	// RetryAfter 建议的重试等待时间，仅在超限时设置为规则窗口长度
	RetryAfter time.Duration
}

// Allowed 返回规则配额，未匹配时为 0
func (d Decision) Allowed() int {
	return d.Rule.Allowed
}

// LogAttrs 返回用于结构化日志的属性
func (d Decision) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("descriptor", d.Descriptor.String()),
		slog.Bool("matched", d.Matched),
	}
	if !d.Matched {
		return attrs
	}
	return append(attrs,
		slog.String("rule", d.Rule.Label()),
		slog.String("key", d.Key),
		slog.Int64("count", d.Count),
		slog.Int("allowed", d.Rule.Allowed),
		slog.Bool("limited", d.Limited),
	)
}
