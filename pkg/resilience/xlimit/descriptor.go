package xlimit

import "strings"

// Opt 可选字符串维度
//
// 区分"未设置"与"设置为空字符串"。零值表示未设置。
type Opt struct {
	value string
	set   bool
}

// Some 返回已设置的维度值（允许为空字符串）
func Some(v string) Opt {
	return Opt{value: v, set: true}
}

// None 返回未设置的维度
func None() Opt {
	return Opt{}
}

// OptFrom 将空字符串视为未设置，用于从 header 等来源构建
func OptFrom(v string) Opt {
	if v == "" {
		return None()
	}
	return Some(v)
}

// Get 返回值以及是否已设置
func (o Opt) Get() (string, bool) {
	return o.value, o.set
}

// IsSet 是否已设置
func (o Opt) IsSet() bool {
	return o.set
}

// Value 返回值，未设置时为空字符串
func (o Opt) Value() string {
	return o.value
}

// String 用于日志，未设置时输出 "-"
func (o Opt) String() string {
	if !o.set {
		return "-"
	}
	return o.value
}

// isWildcard 规则维度的通配判断：未设置或空字符串都不约束该维度
func (o Opt) isWildcard() bool {
	return !o.set || o.value == ""
}

// Descriptor 一次请求的标识属性
//
// 由外部（HTTP 层）产生，限流器只读。
type Descriptor struct {
	AccountID   Opt
	ClientIP    Opt
	RequestType Opt
}

// NewDescriptor 构建描述符，空字符串视为未设置
func NewDescriptor(accountID, clientIP, requestType string) Descriptor {
	return Descriptor{
		AccountID:   OptFrom(accountID),
		ClientIP:    OptFrom(clientIP),
		RequestType: OptFrom(requestType),
	}
}

// fields 按固定顺序返回维度：accountId, clientIp, requestType
func (d Descriptor) fields() [3]Opt {
	return [3]Opt{d.AccountID, d.ClientIP, d.RequestType}
}

// IsEmpty 检查是否所有维度都未设置
func (d Descriptor) IsEmpty() bool {
	return !d.AccountID.set && !d.ClientIP.set && !d.RequestType.set
}

// String 返回描述符的字符串表示，用于日志和调试
func (d Descriptor) String() string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString("accountId=")
	b.WriteString(d.AccountID.String())
	b.WriteString(",clientIp=")
	b.WriteString(d.ClientIP.String())
	b.WriteString(",requestType=")
	b.WriteString(d.RequestType.String())
	return b.String()
}

// WithAccountID 返回设置了 AccountID 的新描述符
func (d Descriptor) WithAccountID(v string) Descriptor {
	d.AccountID = Some(v)
	return d
}

// WithClientIP 返回设置了 ClientIP 的新描述符
func (d Descriptor) WithClientIP(v string) Descriptor {
	d.ClientIP = Some(v)
	return d
}

// WithRequestType 返回设置了 RequestType 的新描述符
func (d Descriptor) WithRequestType(v string) Descriptor {
	d.RequestType = Some(v)
	return d
}

// dedupe 去除重复描述符，保留首次出现的顺序（描述符集合语义）
func dedupe(descriptors []Descriptor) []Descriptor {
	if len(descriptors) < 2 {
		return descriptors
	}
	seen := make(map[Descriptor]struct{}, len(descriptors))
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
