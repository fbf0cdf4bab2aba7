package roster

import (
	"sync"
	"time"

	"duty-roster/pkg/clock"
)

// repeater 固定间隔在事件循环上执行任务。
// 定时器回调里先重新挂载下一次再投递任务，保证间隔不受事件循环排队延迟影响。
type repeater struct {
	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func (e *Engine) every(interval time.Duration, fn func()) *repeater {
	r := &repeater{}
	var arm func()
	arm = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stopped {
			return
		}
		r.timer = e.clock.AfterFunc(interval, func() {
			arm()
			e.post(func() {
				if r.isStopped() {
					return
				}
				fn()
			})
		})
	}
	arm()
	return r
}

func (r *repeater) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *repeater) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// after 一次性定时任务。返回的 Timer 用于取消；
// 任务在事件循环上执行，调用方需自行判断定时器是否已被替换。
func (e *Engine) after(d time.Duration, fn func()) clock.Timer {
	return e.clock.AfterFunc(d, func() {
		e.post(fn)
	})
}
