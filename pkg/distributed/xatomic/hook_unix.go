//go:build unix

package xatomic

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func defaultSignals() []os.Signal {
	return []os.Signal{unix.SIGHUP, unix.SIGINT, unix.SIGTERM, unix.SIGQUIT}
}

// redeliver 把信号发回本进程。监听已停止，没有其他订阅者时按默认方式终止。
func redeliver(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	_ = unix.Kill(unix.Getpid(), s)
}
