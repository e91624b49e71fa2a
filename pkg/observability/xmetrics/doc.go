// Package xmetrics 提供统一的观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span/Attr 三个抽象，默认实现基于 OpenTelemetry。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xatomic",
//		Operation: "run",
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// Span 若同时实现 [EventRecorder]，可在跨度内记录离散事件（如一次锁竞争失败），
// 使用 [AddEvent] 调用即可，不支持时静默忽略。
//
// # 指标命名
//
//   - xatomic.operation.total     计数，属性 component / operation / status
//   - xatomic.operation.duration  直方图（秒），属性同上
//   - xatomic.operation.events    计数，属性 component / operation / event
package xmetrics
