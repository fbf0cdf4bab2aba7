package testutil

import (
	"sort"
	"sync"
	"time"

	"duty-roster/pkg/clock"
)

// FakeClock 手动推进的确定性时钟。
//
// Advance 按到期时间顺序在调用方 goroutine 上同步触发回调，
// 回调中再注册的定时器若在推进目标之内也会被触发。
// 所有方法并发安全。
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*fakeTimer
}

var _ clock.Clock = (*FakeClock)(nil)

type fakeTimer struct {
	c        *FakeClock
	deadline time.Time
	seq      int64
	fn       func()
}

// NewFakeClock 创建起始于 start 的时钟
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now 当前时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 注册在 d 之后触发的回调
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending 尚未触发的定时器数量
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance 将时钟推进 d，依次触发到期的定时器
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.deadline
		c.mu.Unlock()

		next.fn()
	}
}

// popDueLocked 取出最早到期（同时到期按注册顺序）的定时器
func (c *FakeClock) popDueLocked(target time.Time) *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].deadline.Before(c.timers[j].deadline)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	first := c.timers[0]
	if first.deadline.After(target) {
		return nil
	}
	c.timers = c.timers[1:]
	return first
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	for i, other := range t.c.timers {
		if other == t {
			t.c.timers = append(t.c.timers[:i], t.c.timers[i+1:]...)
			return true
		}
	}
	return false
}
