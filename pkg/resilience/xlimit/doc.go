// Package xlimit 提供基于共享计数存储的固定窗口限流。
//
// # 核心概念
//
//   - Descriptor：请求描述符，包含 accountId、clientIp、requestType 三个可选维度
//   - Rule：限流规则，约束零到三个维度，给出窗口内的配额与窗口长度（MINUTE/HOUR）
//   - RuleMatcher：按配置顺序选出第一条匹配的特定规则，否则回退到通用规则
//   - Limiter：对每个描述符匹配规则、计算窗口键、读写共享计数
//   - CounterStore：共享计数存储，提供 RedisStore 与 MemoryStore 两种实现
//
// # 规则匹配
//
// 规则维度为空字符串与未设置等价，都是通配。三个维度都通配的规则是通用规则，
// 至多一条。没有适用规则的描述符不限流，也不访问存储，只记录日志与指标。
//
// # 计数策略
//
//   - StrategyNaive（默认）：GET → 比较 → SET 并刷新过期时间。
//     读与写之间没有原子性，并发请求会少计数
//   - StrategyAtomic：单次原子自增，过期时间只在创建时设置。
//     被拒绝的请求同样计数，窗口不会因持续请求而延长
//   - StrategyCAS：保持 naive 的语义，写回改为比较并设置，冲突时有限次重试
//
// # 阈值
//
// ThresholdQuota（默认）在已有计数 >= 配额时拒绝，每个窗口恰好放行配额数量的请求；
// ThresholdLegacy 在已有计数 > 配额时才拒绝，每个窗口放行配额 + 1 个请求。
//
// # 错误处理
//
// 存储不可用返回 *StoreError（匹配 ErrStoreUnavailable），计数值损坏返回
// *CounterError（匹配 ErrMalformedCounter）。两者都不是"限流"也不是"放行"，
// 由调用方决定；PolicyLimiter 提供 fail-open / fail-closed 两种常用处理。
//
// 错误只对出错的描述符致命：其余描述符照常判定，任一描述符超限时
// ShouldLimit 返回 (true, nil)，与描述符顺序无关。
//
// # 快速开始
//
//	limiter, err := xlimit.NewRedis(redisClient,
//	    xlimit.WithRules(
//	        xlimit.NewRuleBuilder().AccountID("acct-1").Allowed(100).Build(),
//	        xlimit.GeneralRule(10, xlimit.IntervalMinute),
//	    ),
//	    xlimit.WithStrategy(xlimit.StrategyAtomic),
//	    xlimit.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	limited, err := limiter.ShouldLimit(ctx, xlimit.NewDescriptor("acct-1", "10.0.0.1", "GET"))
//	switch {
//	case err != nil:
//	    // 存储不可用或计数损坏，由调用方决定
//	case limited:
//	    // 拒绝
//	}
//
// # HTTP 中间件
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/", xlimit.HTTPMiddleware(limiter)(apiHandler))
//
// 客户端 IP 默认取自 RemoteAddr。只有部署在受信代理之后时才应使用
// WithTrustForwarded(true) 读取 X-Forwarded-For / X-Real-IP。
package xlimit
