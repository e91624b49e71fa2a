package xatomic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omeyang/xatomic/pkg/observability/xlog"
)

// Extender 可续期的锁。配置了 [WithKeepAlive] 时 lock 必须实现该接口。
//
// xdlock.Mutex 实现了 Extend。
type Extender interface {
	// Extend 把锁的过期时间顺延，锁已不属于调用方时返回错误。
	Extend(ctx context.Context) error
}

// keepAlive 持锁期间按 interval 续期，续期失败时标记锁丢失并取消 work。
// 返回的 stop 等待续期 goroutine 退出，可重复调用。
func (r *run) keepAlive(ctx context.Context, ext Extender, cancelWork context.CancelCauseFunc) (stop func()) {
	interval := r.opts.keepAlive
	stopCh := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}

			// 单次续期不超过一个间隔，避免拖过下一次续期
			extCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interval)
			err := ext.Extend(extCtx)
			cancel()
			if err == nil {
				continue
			}
			if !r.held.Load() {
				// 钩子已经释放
				return
			}
			r.opts.logger.Error(ctx, "extend lock failed, canceling work",
				xlog.Lock(r.name), xlog.Err(err))
			r.lose(err)
			cancelWork(fmt.Errorf("%w: %w", ErrLockLost, err))
			return
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-done
		})
	}
}
