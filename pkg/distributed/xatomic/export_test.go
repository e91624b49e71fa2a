package xatomic

import "os"

// Trigger 模拟收到 sig，阻塞到监听 goroutine 接收为止。
func (h *SignalHooks) Trigger(sig os.Signal) {
	h.trigger <- sig
}

// SetRedeliver 替换信号重发，测试进程不能真的被终止。
func (h *SignalHooks) SetRedeliver(fn func(os.Signal)) {
	h.redeliver = fn
}

// Listening 是否有监听 goroutine
func (h *SignalHooks) Listening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener != nil
}
