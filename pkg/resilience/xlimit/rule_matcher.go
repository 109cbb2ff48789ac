package xlimit

import "slices"

// RuleMatcher 规则匹配器
//
// 规则按构造时的顺序保存，"第一个匹配"即切片中的第一条。
// 构造后只读，可并发使用。
type RuleMatcher struct {
	specific []Rule
	general  Rule
	hasGen   bool
}

// NewRuleMatcher 创建规则匹配器
//
// 规则被拆分为特定规则（至少约束一个维度）与通用规则。
// 存在多条通用规则时只取第一条。
func NewRuleMatcher(rules []Rule) *RuleMatcher {
	rm := &RuleMatcher{}
	for _, rule := range rules {
		if rule.IsGeneral() {
			if !rm.hasGen {
				rm.general = rule
				rm.hasGen = true
			}
			continue
		}
		rm.specific = append(rm.specific, rule)
	}
	return rm
}

// Match 为描述符选出至多一条规则
//
// 先在特定规则中按顺序查找第一条匹配的规则；
// 都不匹配时回退到通用规则；两者都没有时返回 (Rule{}, false)，
// 调用方不应对该描述符限流。
func (rm *RuleMatcher) Match(d Descriptor) (Rule, bool) {
	for _, rule := range rm.specific {
		if ruleMatches(rule, d) {
			return rule, true
		}
	}
	if rm.hasGen {
		return rm.general, true
	}
	return Rule{}, false
}

// Rules 返回特定规则（按顺序）加通用规则的副本
func (rm *RuleMatcher) Rules() []Rule {
	out := slices.Clone(rm.specific)
	if rm.hasGen {
		out = append(out, rm.general)
	}
	return out
}

// General 返回通用规则
func (rm *RuleMatcher) General() (Rule, bool) {
	return rm.general, rm.hasGen
}

// ruleMatches 规则约束的每个维度上，描述符都必须有相等的值；
// 未约束的维度是通配，描述符是否携带该维度都满足。
func ruleMatches(rule Rule, d Descriptor) bool {
	rf, df := rule.fields(), d.fields()
	for i := range rf {
		if !fieldMatches(rf[i], df[i]) {
			return false
		}
	}
	return true
}

func fieldMatches(ruleField, descField Opt) bool {
	if ruleField.isWildcard() {
		return true
	}
	v, ok := descField.Get()
	return ok && v == ruleField.value
}
