// Package xmetrics 提供组件共用的观测接口：Observer、Span 与 Attr。
//
// 组件只依赖 Observer 接口，一次操作对应一个 Span：
//
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xlimit",
//		Operation: "should_limit",
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// NewOTelObserver 基于 OpenTelemetry 实现，每个 Span 同时记录：
//   - xwindow.operation.total
//   - xwindow.operation.duration
//
// 指标属性为 component / operation / status。
package xmetrics
