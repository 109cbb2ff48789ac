package xlimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// benchStores 基准测试使用的两种存储
func benchStores(b *testing.B) map[string]func(b *testing.B) CounterStore {
	b.Helper()
	return map[string]func(b *testing.B) CounterStore{
		"memory": func(*testing.B) CounterStore { return NewMemoryStore() },
		"miniredis": func(b *testing.B) CounterStore {
			mr := miniredis.RunT(b)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			b.Cleanup(func() { _ = rdb.Close() })
			store, err := NewRedisStore(rdb)
			if err != nil {
				b.Fatalf("failed to create redis store: %v", err)
			}
			return store
		},
	}
}

func newBenchLimiter(b *testing.B, store CounterStore, strategy Strategy) *Limiter {
	b.Helper()
	l, err := New(store,
		WithStrategy(strategy),
		WithRules(
			NewRuleBuilder().Name("vip").AccountID("vip").Allowed(1<<30).Build(),
			GeneralRule(1<<30, IntervalHour),
		),
	)
	if err != nil {
		b.Fatalf("failed to create limiter: %v", err)
	}
	b.Cleanup(func() { _ = l.Close() })
	return l
}

// BenchmarkShouldLimit 单描述符热点键
func BenchmarkShouldLimit(b *testing.B) {
	for storeName, newStore := range benchStores(b) {
		for _, strategy := range []Strategy{StrategyNaive, StrategyAtomic, StrategyCAS} {
			b.Run(fmt.Sprintf("%s/%s", storeName, strategy), func(b *testing.B) {
				l := newBenchLimiter(b, newStore(b), strategy)
				ctx := context.Background()
				d := NewDescriptor("A1", "10.0.0.1", "GET")

				b.ReportAllocs()
				for b.Loop() {
					if _, err := l.ShouldLimit(ctx, d); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkShouldLimit_Parallel 多个 goroutine 分散在不同账户上
func BenchmarkShouldLimit_Parallel(b *testing.B) {
	for storeName, newStore := range benchStores(b) {
		b.Run(storeName, func(b *testing.B) {
			l := newBenchLimiter(b, newStore(b), StrategyAtomic)
			ctx := context.Background()
			var seq atomic.Int64

			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				d := NewDescriptor(fmt.Sprintf("acct-%d", seq.Add(1)%16), "", "")
				for pb.Next() {
					_, _ = l.ShouldLimit(ctx, d)
				}
			})
		})
	}
}

// BenchmarkShouldLimit_MultiDescriptor 一次判定多个描述符
func BenchmarkShouldLimit_MultiDescriptor(b *testing.B) {
	l := newBenchLimiter(b, NewMemoryStore(), StrategyAtomic)
	ctx := context.Background()
	ds := []Descriptor{
		NewDescriptor("vip", "", ""),
		NewDescriptor("", "10.0.0.1", ""),
		NewDescriptor("A1", "10.0.0.1", "GET"),
	}

	b.ReportAllocs()
	for b.Loop() {
		_, _ = l.ShouldLimit(ctx, ds...)
	}
}

// BenchmarkRuleMatcher_Match 规则查找
func BenchmarkRuleMatcher_Match(b *testing.B) {
	rules := make([]Rule, 0, 65)
	for i := range 64 {
		rules = append(rules, NewRuleBuilder().AccountID(fmt.Sprintf("acct-%d", i)).Allowed(10).Build())
	}
	rules = append(rules, GeneralRule(10, IntervalMinute))
	rm := NewRuleMatcher(rules)
	d := NewDescriptor("acct-63", "10.0.0.1", "GET")

	b.ReportAllocs()
	for b.Loop() {
		_, _ = rm.Match(d)
	}
}
