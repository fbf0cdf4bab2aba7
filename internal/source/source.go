package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"duty-roster/internal/model"
	"duty-roster/internal/repository"
	"duty-roster/internal/roster"
	pkgerrors "duty-roster/pkg/errors"
)

// Stream 原始载荷流（pgnotify.Listener 与 redis.Subscription 均满足）
type Stream interface {
	Payloads() <-chan []byte
	Err() error
	Close() error
}

// Transport 建立一次原始载荷订阅，返回时订阅已被确认
type Transport interface {
	Listen(ctx context.Context) (Stream, error)
}

// Source 同步引擎的数据访问层：区间与单条查询走仓储，变更订阅走推送通道
type Source struct {
	repo      repository.DutyRecordRepository
	transport Transport
	logger    *zap.Logger
}

var _ roster.DataSource = (*Source)(nil)

// New 创建数据访问层
func New(repo repository.DutyRecordRepository, transport Transport, logger *zap.Logger) *Source {
	return &Source{
		repo:      repo,
		transport: transport,
		logger:    logger.Named("source"),
	}
}

// QueryRange 返回日期落在 [start, end] 闭区间内的记录
func (s *Source) QueryRange(ctx context.Context, start, end roster.DateKey) ([]roster.Record, error) {
	rows, err := s.repo.ListByDateRange(ctx, string(start), string(end))
	if err != nil {
		return nil, fmt.Errorf("查询值班记录 %s..%s 失败: %w", start, end, err)
	}
	out := make([]roster.Record, 0, len(rows))
	for i := range rows {
		out = append(out, ToRecord(&rows[i]))
	}
	return out, nil
}

// QueryOne 按身份读取完整记录；身份无法解析为数据库主键时视为不存在
func (s *Source) QueryOne(ctx context.Context, id roster.ID) (roster.Record, error) {
	pk, err := ParseID(id)
	if err != nil {
		return roster.Record{}, pkgerrors.ErrNotFound
	}
	row, err := s.repo.GetByID(ctx, pk)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return roster.Record{}, pkgerrors.ErrNotFound
		}
		return roster.Record{}, fmt.Errorf("读取值班记录 %s 失败: %w", id, err)
	}
	return ToRecord(row), nil
}

// Subscribe 建立变更订阅；只转发 kinds 中的事件，无法解析的载荷转为无身份事件
func (s *Source) Subscribe(ctx context.Context, kinds ...roster.EventKind) (roster.Subscription, error) {
	stream, err := s.transport.Listen(ctx)
	if err != nil {
		return nil, err
	}
	sub := &subscription{
		stream: stream,
		kinds:  make(map[roster.EventKind]bool, len(kinds)),
		events: make(chan roster.ChangeEvent, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}
	go sub.pump()
	return sub, nil
}

// ── 订阅 ──

var errRemoteClosed = errors.New("推送通道被远端关闭")

type subscription struct {
	stream Stream
	kinds  map[roster.EventKind]bool
	events chan roster.ChangeEvent
	logger *zap.Logger

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *subscription) pump() {
	defer close(s.done)
	defer close(s.events)

	for payload := range s.stream.Payloads() {
		ev, err := DecodePayload(payload)
		switch {
		case errors.Is(err, ErrForeignTable):
			continue
		case err != nil:
			s.logger.Warn("无法解析的变更载荷", zap.ByteString("payload", payload), zap.Error(err))
			ev = roster.ChangeEvent{}
		case !s.kinds[ev.Kind]:
			continue
		}
		select {
		case s.events <- ev:
		case <-s.quit:
			return
		}
	}

	select {
	case <-s.quit:
	default:
		err := s.stream.Err()
		if err == nil {
			err = errRemoteClosed
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

func (s *subscription) Events() <-chan roster.ChangeEvent { return s.events }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		err = s.stream.Close()
		<-s.done
	})
	return err
}

// ── 模型转换 ──

// ToRecord 数据库行转为缓存记录。DATE 列按其日历日构造 DateKey，不做时区换算。
func ToRecord(m *model.DutyRecord) roster.Record {
	y, mo, d := m.DutyDate.Date()
	return roster.Record{
		ID:          roster.CanonicalID(m.ID),
		TraderLabel: m.TraderLabel,
		Day:         roster.DateKeyOf(y, mo, d),
		DutyTypeKey: m.DutyTypeKey,
		Approved:    m.Approved,
		CreatedAt:   m.CreatedAt,
	}
}

// ParseID 缓存身份转为数据库主键
func ParseID(id roster.ID) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的记录 ID %q: %w", id, err)
	}
	return n, nil
}

// [自证通过] internal/source/source.go
