package xlimit

import "strings"

// keyDelimiter 维度之间的分隔符，不应出现在维度值中
const keyDelimiter = ":"

// WindowKey 计算描述符的窗口键（不含前缀）
//
// 维度顺序固定为 accountId, clientIp, requestType，以 ":" 连接。
//   - KeyScopeDescriptor：描述符上所有已设置的维度都参与，与规则无关
//   - KeyScopeRule：只取规则约束的维度；通用规则得到空键
func WindowKey(d Descriptor, rule Rule, scope KeyScope) string {
	df := d.fields()
	rf := rule.fields()

	var b strings.Builder
	b.Grow(64)
	first := true
	for i := range df {
		v, ok := df[i].Get()
		if !ok {
			continue
		}
		if scope == KeyScopeRule && rf[i].isWildcard() {
			continue
		}
		if !first {
			b.WriteString(keyDelimiter)
		}
		first = false
		b.WriteString(v)
	}
	return b.String()
}
