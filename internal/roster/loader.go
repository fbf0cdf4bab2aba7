package roster

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgerrors "duty-roster/pkg/errors"
)

// rangeLoader 区间加载器：保证已加载区间覆盖目标月份。
// 拉取结果一律增量合并；全量替换只由轮询兜底使用。
type rangeLoader struct {
	e      *Engine
	logger *zap.Logger

	// 同一时刻只有一个拉取在途，其余请求排队，待前一次落地后按新区间重新规划
	inflight bool
	queue    []loadRequest

	// pending 拉取在途期间由推送或本端写入得出的各身份最新结果，nil 表示已删除。
	// 拉取快照可能早于这些变更，落地后需在新区间上重放。
	pending map[ID]*Record
}

type loadRequest struct {
	target Month
	done   chan error
}

// loadPlan 一次加载的规划结果
type loadPlan struct {
	fetch   Span
	newSpan Span
	// reset 区间超过上限时丢弃旧缓存，围绕目标月重新加载
	reset bool
}

func newRangeLoader(e *Engine) *rangeLoader {
	return &rangeLoader{e: e, logger: e.logger.Named("loader")}
}

// ensure 在事件循环内调用；结果通过 req.done 返回
func (l *rangeLoader) ensure(req loadRequest) {
	if l.inflight {
		l.queue = append(l.queue, req)
		return
	}
	l.run(req)
}

func (l *rangeLoader) run(req loadRequest) {
	plan := l.plan(req.target)
	if plan == nil {
		req.done <- nil
		l.next()
		return
	}
	l.inflight = true

	start, end := plan.fetch.Bounds()
	timeout := l.e.opts.FetchTimeout
	l.logger.Info("拉取区间",
		zap.Stringer("target", req.target),
		zap.Stringer("fetch", plan.fetch),
		zap.Bool("reset", plan.reset),
	)

	go func() {
		ctx, cancel := context.WithTimeout(l.e.ctx, timeout)
		defer cancel()
		records, err := l.e.src.QueryRange(ctx, start, end)
		l.e.post(func() { l.onFetched(req, *plan, records, err) })
	}()
}

// remember 拉取在途时记录某身份的最新结果；无拉取在途时缓存与区间已一致，无需记录
func (l *rangeLoader) remember(id ID, r *Record) {
	if !l.inflight {
		return
	}
	if l.pending == nil {
		l.pending = make(map[ID]*Record)
	}
	if r != nil {
		cp := *r
		r = &cp
	}
	l.pending[id] = r
}

// replay 在新区间上重放拉取期间的变更，覆盖快照中可能过期的副本
func (l *rangeLoader) replay(span Span) []DateKey {
	var touched []DateKey
	for id, r := range l.pending {
		if r != nil && span.ContainsKey(r.Day) {
			touched = append(touched, l.e.cache.MergeAdd(*r)...)
		} else {
			touched = append(touched, l.e.cache.DeleteByID(id)...)
		}
	}
	l.pending = nil
	return touched
}

func (l *rangeLoader) onFetched(req loadRequest, plan loadPlan, records []Record, err error) {
	l.inflight = false
	if l.e.closed {
		l.pending = nil
		req.done <- pkgerrors.ErrEngineClosed
		return
	}
	if err != nil {
		// 区间未变，拉取期间的变更已按原区间应用
		l.pending = nil
		rangeFetchesTotal.WithLabelValues("error").Inc()
		l.logger.Warn("区间拉取失败，缓存与已加载区间保持不变",
			zap.Stringer("fetch", plan.fetch),
			zap.Error(err),
		)
		req.done <- fmt.Errorf("拉取区间 %s 失败: %w", plan.fetch, err)
		l.next()
		return
	}

	rangeFetchesTotal.WithLabelValues("ok").Inc()
	if plan.reset {
		l.e.cache.Reset()
		l.e.spanGen++
	}
	touched := l.e.cache.MergeAdd(records...)
	span := plan.newSpan
	l.e.span = &span
	if len(l.pending) > 0 {
		l.logger.Debug("重放拉取期间的变更", zap.Int("count", len(l.pending)))
	}
	touched = append(touched, l.replay(span)...)
	l.e.afterMutation(touched)
	if plan.reset {
		l.e.notify()
	}
	l.logger.Info("已加载区间更新", zap.Stringer("span", span), zap.Int("records", len(records)))

	req.done <- nil
	l.next()
}

func (l *rangeLoader) next() {
	if l.inflight || len(l.queue) == 0 {
		return
	}
	req := l.queue[0]
	l.queue = l.queue[1:]
	l.run(req)
}

// plan 计算需要拉取的月份。只向导航方向扩展，不重复拉取已加载月份。
func (l *rangeLoader) plan(target Month) *loadPlan {
	radius := l.e.opts.SpanRadius
	cur := l.e.span

	if cur == nil {
		s := SpanAround(target, radius)
		return &loadPlan{fetch: s, newSpan: s}
	}
	if cur.Contains(target) {
		return nil
	}

	var p loadPlan
	if target.Before(cur.Start) {
		newStart := target.AddMonths(-radius)
		p.fetch = Span{Start: newStart, End: cur.Start.AddMonths(-1)}
	} else {
		newEnd := target.AddMonths(radius)
		p.fetch = Span{Start: cur.End.AddMonths(1), End: newEnd}
	}
	p.newSpan = cur.Union(p.fetch)

	if max := l.e.opts.MaxSpanMonths; max > 0 && p.newSpan.Months() > max {
		s := SpanAround(target, radius)
		return &loadPlan{fetch: s, newSpan: s, reset: true}
	}
	return &p
}

// failPending 引擎关闭时让所有排队请求返回
func (l *rangeLoader) failPending() {
	for _, req := range l.queue {
		req.done <- pkgerrors.ErrEngineClosed
	}
	l.queue = nil
}
