// Package clock 为定时逻辑提供可替换的时间源，生产环境使用系统时钟，测试使用 internal/testutil.FakeClock。
package clock

import "time"

// Timer 可取消的一次性定时器
type Timer interface {
	// Stop 取消定时器；定时器尚未触发时返回 true
	Stop() bool
}

// Clock 时间源
type Clock interface {
	Now() time.Time
	// AfterFunc 在 d 之后于独立 goroutine 中调用 f
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// New 返回系统时钟
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
