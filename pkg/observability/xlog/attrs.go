package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key。
const (
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyComponent = "component"
	KeyLock      = "lock"
	KeyAttempt   = "attempt"
	KeyDelay     = "delay"
	KeyElapsed   = "elapsed"
	KeySignal    = "signal"
)

// Err 创建错误属性。err 为 nil 时返回空属性（slog 会忽略）。
//
//	if err != nil {
//	    logger.Error(ctx, "unlock failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出为人类可读格式（如 "1m30s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Lock 创建锁标识属性
func Lock(name string) slog.Attr {
	return slog.String(KeyLock, name)
}

// Attempt 创建尝试次数属性
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Delay 创建等待时长属性
func Delay(d time.Duration) slog.Attr {
	return slog.String(KeyDelay, d.String())
}

// Elapsed 创建已耗时属性
func Elapsed(d time.Duration) slog.Attr {
	return slog.String(KeyElapsed, d.String())
}

// Signal 创建信号名属性
func Signal(name string) slog.Attr {
	return slog.String(KeySignal, name)
}
