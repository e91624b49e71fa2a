package xlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	defaultLogger atomic.Pointer[LoggerWithLevel]
	defaultMu     sync.Mutex
)

// Default 返回全局 Logger，首次调用时惰性初始化。
func Default() LoggerWithLevel {
	if p := defaultLogger.Load(); p != nil {
		return *p
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if p := defaultLogger.Load(); p != nil {
		return *p
	}
	logger, _, err := New().Build()
	if err != nil {
		// 默认配置不会出错
		panic(err)
	}
	defaultLogger.Store(&logger)
	return logger
}

// SetDefault 替换全局 Logger，nil 会被忽略。
func SetDefault(logger LoggerWithLevel) {
	if logger == nil {
		return
	}
	defaultLogger.Store(&logger)
}

// ResetDefault 重置全局 Logger（仅用于测试）
func ResetDefault() {
	defaultLogger.Store(nil)
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().Debug(ctx, msg, attrs...)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().Info(ctx, msg, attrs...)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().Warn(ctx, msg, attrs...)
}

func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().Error(ctx, msg, attrs...)
}
