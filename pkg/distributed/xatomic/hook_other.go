//go:build !unix

package xatomic

import "os"

func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// redeliver 无法向自身重发信号的平台直接退出。
func redeliver(os.Signal) {
	os.Exit(1)
}
