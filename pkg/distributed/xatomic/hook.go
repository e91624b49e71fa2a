package xatomic

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
)

// DefaultHookTimeout 单个钩子的默认执行超时
const DefaultHookTimeout = 3 * time.Second

// HookRegistry 进程异常终止时的清理钩子注册表。
type HookRegistry interface {
	// Register 注册钩子，返回的 deregister 可重复调用。
	Register(hook func(ctx context.Context)) (deregister func())
}

type nopHooks struct{}

func (nopHooks) Register(func(context.Context)) func() {
	return func() {}
}

// NopHooks 不注册任何钩子。
var NopHooks HookRegistry = nopHooks{}

// SignalHooks 基于终止信号的钩子注册表。
//
// 至少有一个钩子时才监听信号，最后一个钩子注销后监听 goroutine 退出。
// 进程已忽略的信号（例如 nohup 下的 SIGHUP）不监听。
// 收到信号后依次执行所有钩子（各自受超时约束，panic 被恢复），
// 停止监听，再把同一信号发回本进程，使原有处理（默认是终止进程）继续。
//
// 应用自己也订阅了这些信号时，重发会让应用多收到一次，
// 此时用 WithRedelivery(false) 关闭重发，由应用负责退出。
type SignalHooks struct {
	signals   []os.Signal
	timeout   time.Duration
	logger    xlog.Logger
	redeliver func(os.Signal)
	noResend  bool

	// trigger 用于测试时模拟信号
	trigger chan os.Signal

	mu       sync.Mutex
	hooks    map[uint64]func(context.Context)
	nextID   uint64
	listener *listener
}

type listener struct {
	stop chan struct{}
	done chan struct{}
}

// SignalHooksOption 配置 SignalHooks。
type SignalHooksOption func(*SignalHooks)

// WithSignals 设置监听的信号，空时使用默认列表。
func WithSignals(sigs ...os.Signal) SignalHooksOption {
	return func(h *SignalHooks) {
		if len(sigs) > 0 {
			h.signals = sigs
		}
	}
}

// WithHookTimeout 设置单个钩子的超时，d <= 0 时忽略。
func WithHookTimeout(d time.Duration) SignalHooksOption {
	return func(h *SignalHooks) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHookLogger 设置钩子失败时的日志器。
func WithHookLogger(l xlog.Logger) SignalHooksOption {
	return func(h *SignalHooks) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRedelivery 设置执行钩子后是否把信号发回本进程，默认 true。
func WithRedelivery(enabled bool) SignalHooksOption {
	return func(h *SignalHooks) {
		h.noResend = !enabled
	}
}

// NewSignalHooks 创建注册表。
func NewSignalHooks(opts ...SignalHooksOption) *SignalHooks {
	h := &SignalHooks{
		signals:   defaultSignals(),
		timeout:   DefaultHookTimeout,
		redeliver: redeliver,
		trigger:   make(chan os.Signal),
		hooks:     make(map[uint64]func(context.Context)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var defaultHooks = sync.OnceValue(func() *SignalHooks {
	return NewSignalHooks()
})

// DefaultHooks 返回进程级共享的 SignalHooks。
func DefaultHooks() HookRegistry {
	return defaultHooks()
}

// Register 注册钩子。hook 为 nil 时返回空的 deregister。
func (h *SignalHooks) Register(hook func(ctx context.Context)) func() {
	if hook == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.hooks[id] = hook
	if h.listener == nil {
		h.listener = h.listen()
	}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.deregister(id) })
	}
}

// Len 当前注册的钩子数
func (h *SignalHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

func (h *SignalHooks) deregister(id uint64) {
	h.mu.Lock()
	delete(h.hooks, id)
	var l *listener
	if len(h.hooks) == 0 && h.listener != nil {
		l = h.listener
		h.listener = nil
		close(l.stop)
	}
	h.mu.Unlock()

	if l != nil {
		<-l.done
	}
}

// listen 启动监听 goroutine，调用方持有 h.mu。
func (h *SignalHooks) listen() *listener {
	l := &listener{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	sigCh := make(chan os.Signal, 1)
	// 对已忽略的信号调用 Notify 会取消忽略；列表为空时 Notify 会订阅全部信号
	if sigs := h.watched(); len(sigs) > 0 {
		signal.Notify(sigCh, sigs...)
	}

	go func() {
		defer close(l.done)

		var sig os.Signal
		select {
		case <-l.stop:
			signal.Stop(sigCh)
			return
		case sig = <-sigCh:
		case sig = <-h.trigger:
		}

		h.fire(sig)
		signal.Stop(sigCh)

		h.mu.Lock()
		if h.listener == l {
			h.listener = nil
		}
		h.mu.Unlock()

		if !h.noResend {
			h.redeliver(sig)
		}
	}()
	return l
}

// watched 返回进程当前没有忽略的信号。
func (h *SignalHooks) watched() []os.Signal {
	sigs := make([]os.Signal, 0, len(h.signals))
	for _, sig := range h.signals {
		if !signal.Ignored(sig) {
			sigs = append(sigs, sig)
		}
	}
	return sigs
}

func (h *SignalHooks) fire(sig os.Signal) {
	h.mu.Lock()
	hooks := make([]func(context.Context), 0, len(h.hooks))
	for _, hook := range h.hooks {
		hooks = append(hooks, hook)
	}
	h.mu.Unlock()

	logger := h.logger
	if logger == nil {
		logger = xlog.Default().With(xlog.Component("xatomic"))
	}
	logger.Warn(context.Background(), "termination signal received, running release hooks",
		xlog.Signal(sig.String()),
	)
	for _, hook := range hooks {
		h.runHook(logger, hook)
	}
}

func (h *SignalHooks) runHook(logger xlog.Logger, hook func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "release hook panicked", xlog.Err(fmt.Errorf("panic: %v", r)))
		}
	}()
	hook(ctx)
}
