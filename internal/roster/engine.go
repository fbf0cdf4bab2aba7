package roster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"duty-roster/pkg/clock"
	pkgerrors "duty-roster/pkg/errors"
)

// Options 同步引擎参数。零值字段使用 DefaultOptions 中的取值。
type Options struct {
	// ReconnectDelay 订阅出错后的固定重连延迟
	ReconnectDelay time.Duration
	// HealthInterval 推送健康检查间隔
	HealthInterval time.Duration
	// StaleAfter 已订阅状态下连续无事件超过该时长即降级
	StaleAfter time.Duration
	// PollInterval 降级期间轮询兜底间隔
	PollInterval time.Duration
	// SubscribeTimeout 单次订阅建立的超时
	SubscribeTimeout time.Duration
	// FetchTimeout 区间拉取与实时读取的超时
	FetchTimeout time.Duration
	// SpanRadius 以目标月为中心前后各加载的月数
	SpanRadius int
	// MaxSpanMonths 已加载区间的月数上限，0 表示不限
	MaxSpanMonths int
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		ReconnectDelay:   5 * time.Second,
		HealthInterval:   10 * time.Second,
		StaleAfter:       30 * time.Second,
		PollInterval:     10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		FetchTimeout:     15 * time.Second,
		SpanRadius:       3,
		MaxSpanMonths:    36,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = d.HealthInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = d.StaleAfter
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.SubscribeTimeout <= 0 {
		o.SubscribeTimeout = d.SubscribeTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.SpanRadius <= 0 {
		o.SpanRadius = d.SpanRadius
	}
	if o.MaxSpanMonths < 0 {
		o.MaxSpanMonths = 0
	}
	return o
}

var errNotStarted = errors.New("同步引擎尚未启动")

// View 某月份的投影结果
type View struct {
	Month   Month    `json:"month"`
	Records []Record `json:"records"`
	// Covered 月份是否在已加载区间内；为 false 时结果不具权威性
	Covered bool  `json:"covered"`
	Span    *Span `json:"span,omitempty"`
}

// Status 引擎运行状态
type Status struct {
	Feed      FeedState `json:"feed"`
	Polling   bool      `json:"polling"`
	Span      *Span     `json:"span,omitempty"`
	Window    *Month    `json:"window,omitempty"`
	Records   int       `json:"records"`
	LastEvent time.Time `json:"last_event"`
}

// Engine 值班表同步引擎。
//
// 缓存、已加载区间、推送状态与轮询定时器都归属于唯一的事件循环 goroutine，
// 外部调用与网络 I/O 结果均以任务形式投递到循环中执行，因此数据结构本身无需加锁。
type Engine struct {
	src    DataSource
	clock  clock.Clock
	logger *zap.Logger
	opts   Options

	cache     *Cache
	projector *Projector
	span      *Span
	window    *Month
	// spanGen 已加载区间每次因超限重置时递增，重置前发起的全量对账结果据此作废
	spanGen uint64

	feed   *feedClient
	poller *poller
	loader *rangeLoader

	// liveReads 每个身份最近一次实时读取的序号，迟到的旧结果据此丢弃
	liveReads map[ID]uint64
	liveSeq   uint64

	tasks   chan func()
	quit    chan struct{}
	done    chan struct{}
	updates chan struct{}

	// ctx 约束所有网络 I/O，Close 时取消
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started atomic.Bool
	stopped bool

	// closed 只在事件循环内读写
	closed bool
}

// New 创建同步引擎；调用 Start 后才开始订阅。clk 为 nil 时使用系统时钟。
func New(src DataSource, opts Options, logger *zap.Logger, clk clock.Clock) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache()
	e := &Engine{
		src:       src,
		clock:     clk,
		logger:    logger,
		opts:      opts.withDefaults(),
		cache:     cache,
		projector: NewProjector(cache),
		liveReads: make(map[ID]uint64),
		tasks:     make(chan func(), 256),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		updates:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.feed = newFeedClient(e)
	e.poller = newPoller(e)
	e.loader = newRangeLoader(e)
	return e
}

// Start 启动事件循环并发起首次订阅。重复调用无效果。
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started.Load() || e.stopped {
		return
	}
	e.started.Store(true)
	go e.run()
	e.post(e.feed.start)
	e.logger.Info("同步引擎已启动")
}

// Close 释放订阅、重连定时器与轮询定时器并停止事件循环。
// 之后到达的拉取结果与推送事件一律丢弃。
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true

	if e.started.Load() {
		_ = e.call(context.Background(), e.shutdown)
		e.cancel()
		close(e.quit)
		<-e.done
	} else {
		e.shutdown()
		e.cancel()
		close(e.quit)
		close(e.done)
	}
	e.logger.Info("同步引擎已关闭")
	return nil
}

func (e *Engine) shutdown() {
	if e.closed {
		return
	}
	e.closed = true
	e.feed.close()
	e.poller.stop()
	e.loader.failPending()
}

// Updates 当前视图月份的数据发生变化时收到信号（合并通知，不保证逐次送达）
func (e *Engine) Updates() <-chan struct{} { return e.updates }

// Navigate 设置视图月份并确保已加载区间覆盖该月。
// 拉取失败时返回错误，缓存与已加载区间保持不变。
func (e *Engine) Navigate(ctx context.Context, m Month) error {
	done := make(chan error, 1)
	err := e.call(ctx, func() {
		if e.closed {
			done <- pkgerrors.ErrEngineClosed
			return
		}
		if e.window == nil || *e.window != m {
			w := m
			e.window = &w
			e.projector.Invalidate()
			e.notify()
		}
		e.loader.ensure(loadRequest{target: m, done: done})
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return pkgerrors.ErrEngineClosed
	}
}

// View 投影某月份的记录，不改变视图月份也不触发加载
func (e *Engine) View(ctx context.Context, m Month) (View, error) {
	var v View
	err := e.call(ctx, func() {
		v.Month = m
		v.Records = e.projector.Project(m)
		if e.span != nil {
			s := *e.span
			v.Span = &s
			v.Covered = s.Contains(m)
		}
	})
	return v, err
}

// Status 当前运行状态
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.call(ctx, func() {
		st.Feed = e.feed.state
		st.Polling = e.poller.active()
		st.Records = e.cache.Len()
		st.LastEvent = e.feed.lastEvent
		if e.span != nil {
			s := *e.span
			st.Span = &s
		}
		if e.window != nil {
			w := *e.window
			st.Window = &w
		}
	})
	return st, err
}

// ApplyLocalWrite 登记本端发起的写入。
// 推送随后送达的同一身份、字段一致的事件会被识别为回声并丢弃。
func (e *Engine) ApplyLocalWrite(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("记录缺少身份")
	}
	return e.callChecked(ctx, func() {
		// 本端写入覆盖同身份的在途实时读取
		delete(e.liveReads, r.ID)
		e.mergeOrEvict(r)
	})
}

// ApplyLocalDelete 登记本端发起的删除
func (e *Engine) ApplyLocalDelete(ctx context.Context, id ID) error {
	if id == "" {
		return errors.New("记录缺少身份")
	}
	return e.callChecked(ctx, func() {
		delete(e.liveReads, id)
		e.evict(id)
	})
}

// ── 事件循环 ──

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.quit:
			return
		}
	}
}

// post 投递任务到事件循环；引擎关闭后丢弃
func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// call 在事件循环上执行 fn 并等待完成
func (e *Engine) call(ctx context.Context, fn func()) error {
	if !e.started.Load() {
		select {
		case <-e.quit:
			return pkgerrors.ErrEngineClosed
		default:
			return errNotStarted
		}
	}

	finished := make(chan struct{})
	task := func() {
		fn()
		close(finished)
	}
	select {
	case e.tasks <- task:
	case <-e.quit:
		return pkgerrors.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return pkgerrors.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callChecked 同 call，但引擎已关闭时返回 ErrEngineClosed 而不执行 fn
func (e *Engine) callChecked(ctx context.Context, fn func()) error {
	var closed bool
	err := e.call(ctx, func() {
		if e.closed {
			closed = true
			return
		}
		fn()
	})
	if err != nil {
		return err
	}
	if closed {
		return pkgerrors.ErrEngineClosed
	}
	return nil
}

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

// afterMutation 缓存变更后刷新指标；变更落在视图月份时使投影失效并通知订阅方
func (e *Engine) afterMutation(touched []DateKey) {
	cacheRecordsGauge.Set(float64(e.cache.Len()))
	if len(touched) == 0 || e.window == nil {
		return
	}
	for _, day := range touched {
		m, err := day.Month()
		if err == nil && m == *e.window {
			e.projector.Invalidate()
			e.notify()
			return
		}
	}
}

// mergeOrEvict 区间内的记录合并进缓存；区间外的记录不缓存，并移除该身份的旧副本
// 区间拉取在途时同时交给加载器暂存，拉取落地后按新区间重新应用
func (e *Engine) mergeOrEvict(r Record) {
	e.loader.remember(r.ID, &r)
	if e.span == nil || !e.span.ContainsKey(r.Day) {
		e.afterMutation(e.cache.DeleteByID(r.ID))
		return
	}
	e.afterMutation(e.cache.MergeAdd(r))
}

// evict 按身份移除缓存副本
func (e *Engine) evict(id ID) {
	e.loader.remember(id, nil)
	e.afterMutation(e.cache.DeleteByID(id))
}

// ── 推送事件对账 ──

func (e *Engine) applyEvent(ev ChangeEvent) {
	if e.closed {
		return
	}
	if ev.ID == "" {
		e.logger.Warn("推送事件缺少身份，触发全量对账", zap.Stringer("kind", ev.Kind))
		e.reconcileSpan("malformed-event")
		return
	}

	switch ev.Kind {
	case EventDelete:
		delete(e.liveReads, ev.ID)
		e.evict(ev.ID)
	case EventInsert, EventUpdate:
		if e.isEcho(ev) {
			feedEchoDiscardedTotal.Inc()
			e.logger.Debug("丢弃本端写入的回声事件", zap.String("id", string(ev.ID)))
			return
		}
		e.liveRead(ev.ID)
	default:
		e.logger.Warn("未知的推送事件类型，触发全量对账", zap.Int("kind", int(ev.Kind)))
		e.reconcileSpan("unknown-event")
	}
}

// isEcho 缓存中已存在同身份且字段一致的记录，说明该变更已在本端应用
func (e *Engine) isEcho(ev ChangeEvent) bool {
	if ev.Partial == nil {
		return false
	}
	cached, ok := e.cache.Lookup(ev.ID)
	if !ok {
		return false
	}
	p := *ev.Partial
	p.ID = ev.ID
	return cached.SameFields(p)
}

// liveRead 推送载荷可能不完整，按身份实时读取完整记录后再合并
func (e *Engine) liveRead(id ID) {
	e.liveSeq++
	seq := e.liveSeq
	e.liveReads[id] = seq
	timeout := e.opts.FetchTimeout

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, timeout)
		defer cancel()
		rec, err := e.src.QueryOne(ctx, id)
		e.post(func() { e.onLiveRead(id, seq, rec, err) })
	}()
}

func (e *Engine) onLiveRead(id ID, seq uint64, rec Record, err error) {
	if e.closed || e.liveReads[id] != seq {
		return
	}
	delete(e.liveReads, id)

	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		// 读取时记录已被删除
		e.evict(id)
	case err != nil:
		e.logger.Warn("实时读取失败，等待后续对账", zap.String("id", string(id)), zap.Error(err))
	default:
		rec.ID = id
		e.mergeOrEvict(rec)
	}
}

// reconcileSpan 对已加载区间做一次全量替换
func (e *Engine) reconcileSpan(reason string) {
	e.poller.reconcile(reason)
}

// [自证通过] internal/roster/engine.go
