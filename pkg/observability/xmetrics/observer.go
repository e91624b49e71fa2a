package xmetrics

import (
	"context"
	"time"
)

// Kind 观测跨度类型
type Kind int

const (
	// KindInternal 进程内操作
	KindInternal Kind = iota
	// KindClient 对外部系统的调用（如锁后端）
	KindClient
)

func (k Kind) String() string {
	if k == KindClient {
		return "Client"
	}
	return "Internal"
}

// Status 观测结果状态
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 观测属性
type Attr struct {
	Key   string
	Value any
}

// String 创建字符串属性
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Int 创建整数属性
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// Bool 创建布尔属性
func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Duration 创建时长属性，OTel 中以纳秒整数记录，key 建议带单位后缀。
func Duration(key string, value time.Duration) Attr { return Attr{Key: key, Value: value} }

// SpanOptions 跨度创建参数
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 跨度结束时的结果。Status 为空时根据 Err 推导。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测跨度。End 应当只生效一次。
type Span interface {
	End(result Result)
}

// EventRecorder 可选接口：在跨度内记录离散事件。
type EventRecorder interface {
	AddEvent(name string, attrs ...Attr)
}

// Observer 观测入口
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 空实现
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空跨度
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

func (NoopSpan) AddEvent(string, ...Attr) {}

// Start 用 observer 开始观测，保证返回非 nil 的 ctx 和 Span。
// observer 为 nil 或返回 nil 值时回落到空实现。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	spanCtx, span := observer.Start(ctx, opts)
	if spanCtx == nil {
		spanCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return spanCtx, span
}

// AddEvent 在 span 支持时记录事件。
func AddEvent(span Span, name string, attrs ...Attr) {
	if rec, ok := span.(EventRecorder); ok {
		rec.AddEvent(name, attrs...)
	}
}
