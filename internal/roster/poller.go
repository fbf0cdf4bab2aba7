package roster

import (
	"context"

	"go.uber.org/zap"
)

// poller 轮询兜底：仅在推送降级期间运行，按固定间隔对已加载区间做全量替换。
// 这是推送中断期间发生的删除唯一可靠的同步途径。
type poller struct {
	e      *Engine
	logger *zap.Logger
	ticker *repeater

	// inflight 有全量拉取进行中；rerun 表示拉取期间又收到了对账请求
	inflight bool
	rerun    bool
}

func newPoller(e *Engine) *poller {
	return &poller{e: e, logger: e.logger.Named("poller")}
}

func (p *poller) active() bool { return p.ticker != nil }

func (p *poller) start() {
	if p.ticker != nil {
		return
	}
	p.logger.Info("启动轮询兜底", zap.Duration("interval", p.e.opts.PollInterval))
	p.ticker = p.e.every(p.e.opts.PollInterval, func() {
		p.reconcile("poll")
	})
}

func (p *poller) stop() {
	if p.ticker == nil {
		return
	}
	p.ticker.stop()
	p.ticker = nil
	p.logger.Info("停止轮询兜底")
}

// reconcile 拉取当前已加载区间的权威数据并全量替换。
// 同时只允许一个拉取在途，期间的新请求合并为一次补拉。
func (p *poller) reconcile(reason string) {
	if p.e.span == nil {
		return
	}
	if p.inflight {
		if reason != "poll" {
			p.rerun = true
		}
		return
	}
	p.inflight = true

	span := *p.e.span
	gen := p.e.spanGen
	start, end := span.Bounds()
	timeout := p.e.opts.FetchTimeout
	p.logger.Debug("全量对账", zap.String("reason", reason), zap.Stringer("span", span))

	go func() {
		ctx, cancel := context.WithTimeout(p.e.ctx, timeout)
		defer cancel()
		records, err := p.e.src.QueryRange(ctx, start, end)
		p.e.post(func() { p.onFetched(span, gen, records, err) })
	}()
}

func (p *poller) onFetched(span Span, gen uint64, records []Record, err error) {
	p.inflight = false
	if p.e.closed {
		return
	}
	switch {
	case gen != p.e.spanGen:
		// 拉取期间区间已重置，旧区间的结果不再适用
		p.logger.Debug("区间已重置，丢弃过期的全量对账结果", zap.Stringer("span", span))
	case err != nil:
		pollFetchesTotal.WithLabelValues("error").Inc()
		p.logger.Warn("全量对账拉取失败，保留现有缓存", zap.Stringer("span", span), zap.Error(err))
	default:
		pollFetchesTotal.WithLabelValues("ok").Inc()
		touched := p.e.cache.FullReplace(span, records)
		p.e.afterMutation(touched)
	}
	if p.rerun {
		p.rerun = false
		p.reconcile("rerun")
	}
}
