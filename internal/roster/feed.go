package roster

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"duty-roster/pkg/clock"
)

// FeedState 变更推送连接状态
type FeedState int

const (
	FeedConnecting FeedState = iota + 1
	FeedSubscribed
	FeedDegraded
	FeedClosed
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedSubscribed:
		return "subscribed"
	case FeedDegraded:
		return "degraded"
	case FeedClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// validateTransitionTo 状态转换表
func (s FeedState) validateTransitionTo(next FeedState) error {
	switch s {
	case FeedConnecting:
		switch next {
		case FeedSubscribed, FeedDegraded, FeedClosed:
			return nil
		}
	case FeedSubscribed:
		switch next {
		case FeedConnecting, FeedDegraded, FeedClosed:
			return nil
		}
	case FeedDegraded:
		// 降级期间底层订阅不拆除，重连在后台继续；收到任何事件即恢复
		switch next {
		case FeedSubscribed, FeedClosed:
			return nil
		}
	}
	return fmt.Errorf("非法的推送状态转换: %v -> %v", s, next)
}

// feedClient 变更推送客户端。所有字段只在事件循环内访问。
type feedClient struct {
	e      *Engine
	logger *zap.Logger

	state FeedState

	// sub 当前订阅句柄；gen 为订阅身份，每次连接尝试递增，
	// 旧订阅的事件、错误和迟到的订阅结果都据此丢弃
	sub Subscription
	gen uint64

	reconnect clock.Timer
	lastEvent time.Time
	health    *repeater
}

func newFeedClient(e *Engine) *feedClient {
	return &feedClient{
		e:      e,
		logger: e.logger.Named("feed"),
		state:  FeedConnecting,
	}
}

func (f *feedClient) transitionTo(next FeedState) {
	if f.state == next {
		return
	}
	if err := f.state.validateTransitionTo(next); err != nil {
		f.logger.Error("BUG: 推送状态转换失败", zap.Error(err))
		return
	}
	f.logger.Info("推送状态变更",
		zap.Stringer("from", f.state),
		zap.Stringer("to", next),
	)
	f.state = next
	feedStateGauge.Set(float64(next))
}

// start 发起首次订阅并启动健康检查
func (f *feedClient) start() {
	feedStateGauge.Set(float64(f.state))
	f.health = f.e.every(f.e.opts.HealthInterval, f.checkHealth)
	f.connect()
}

// connect 以新的订阅身份发起一次订阅（网络 I/O 在事件循环外进行）
func (f *feedClient) connect() {
	f.gen++
	gen := f.gen
	timeout := f.e.opts.SubscribeTimeout
	f.logger.Debug("发起订阅", zap.Uint64("subscription", gen))

	go func() {
		ctx, cancel := context.WithTimeout(f.e.ctx, timeout)
		defer cancel()
		sub, err := f.e.src.Subscribe(ctx, AllEventKinds...)
		f.e.post(func() { f.onSubscribeResult(gen, sub, err) })
	}()
}

func (f *feedClient) onSubscribeResult(gen uint64, sub Subscription, err error) {
	if f.state == FeedClosed || gen != f.gen {
		if sub != nil {
			_ = sub.Close()
		}
		return
	}
	if err != nil {
		f.logger.Warn("订阅失败", zap.Uint64("subscription", gen), zap.Error(err))
		f.scheduleReconnect()
		return
	}

	f.sub = sub
	f.cancelReconnect()
	f.lastEvent = f.e.clock.Now()
	if f.state == FeedDegraded {
		f.e.poller.stop()
	}
	f.transitionTo(FeedSubscribed)

	go func() {
		for ev := range sub.Events() {
			ev := ev
			f.e.post(func() { f.onEvent(gen, ev) })
		}
		f.e.post(func() { f.onSubscriptionEnded(gen, sub.Err()) })
	}()
}

// onSubscriptionEnded 订阅出错、超时或被远端关闭
func (f *feedClient) onSubscriptionEnded(gen uint64, err error) {
	if f.state == FeedClosed || gen != f.gen {
		return
	}
	f.logger.Warn("订阅中断", zap.Uint64("subscription", gen), zap.Error(err))
	f.dropSubscription()
	if f.state == FeedSubscribed {
		f.transitionTo(FeedConnecting)
	}
	f.scheduleReconnect()
}

// scheduleReconnect 固定延迟后重连；已有待执行的重连时不重复安排
func (f *feedClient) scheduleReconnect() {
	if f.reconnect != nil {
		f.logger.Debug("已有待执行的重连，忽略")
		return
	}
	feedReconnectsTotal.Inc()
	delay := f.e.opts.ReconnectDelay
	f.logger.Info("安排重连", zap.Duration("delay", delay))

	var t clock.Timer
	t = f.e.after(delay, func() {
		if f.reconnect != t {
			return
		}
		f.reconnect = nil
		if f.state == FeedClosed {
			return
		}
		f.connect()
	})
	f.reconnect = t
}

func (f *feedClient) cancelReconnect() {
	if f.reconnect != nil {
		f.reconnect.Stop()
		f.reconnect = nil
	}
}

func (f *feedClient) dropSubscription() {
	if f.sub == nil {
		return
	}
	if err := f.sub.Close(); err != nil {
		f.logger.Debug("关闭订阅出错", zap.Error(err))
	}
	f.sub = nil
}

// onEvent 收到当前订阅的事件：刷新活跃时间，降级状态下立即恢复
func (f *feedClient) onEvent(gen uint64, ev ChangeEvent) {
	if f.state == FeedClosed || gen != f.gen {
		return
	}
	feedEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	f.lastEvent = f.e.clock.Now()
	if f.state == FeedDegraded {
		f.e.poller.stop()
		f.transitionTo(FeedSubscribed)
	}
	f.e.applyEvent(ev)
}

// checkHealth 周期性健康检查：
// 已订阅但超过阈值未收到事件，或本应已订阅却仍未订阅，均降级为轮询
func (f *feedClient) checkHealth() {
	switch f.state {
	case FeedSubscribed:
		idle := f.e.clock.Now().Sub(f.lastEvent)
		if idle >= f.e.opts.StaleAfter {
			f.logger.Warn("推送长时间无事件，降级为轮询", zap.Duration("idle", idle))
			f.degrade()
		}
	case FeedConnecting:
		f.logger.Warn("推送未处于订阅状态，降级为轮询")
		f.degrade()
	}
}

func (f *feedClient) degrade() {
	f.transitionTo(FeedDegraded)
	f.e.poller.start()
}

// close 释放订阅、重连定时器与健康检查；可在重连退避期间调用
func (f *feedClient) close() {
	if f.health != nil {
		f.health.stop()
		f.health = nil
	}
	f.cancelReconnect()
	f.dropSubscription()
	f.gen++
	f.transitionTo(FeedClosed)
}
