package service

import (
	"context"
	"sort"
	"sync"

	"duty-roster/internal/model"
	"duty-roster/internal/repository"
	"duty-roster/internal/roster"
	pkgerrors "duty-roster/pkg/errors"
)

// ── Mock DutyRecordRepository ──

type mockDutyRecordRepo struct {
	records map[int64]*model.DutyRecord
	nextID  int64
	err     error
}

func newMockDutyRecordRepo() *mockDutyRecordRepo {
	return &mockDutyRecordRepo{records: make(map[int64]*model.DutyRecord), nextID: 1}
}

func (m *mockDutyRecordRepo) ListByDateRange(_ context.Context, startDate, endDate string) ([]model.DutyRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.DutyRecord
	for _, r := range m.records {
		d := r.DutyDate.Format("2006-01-02")
		if d >= startDate && d <= endDate {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDutyRecordRepo) GetByID(_ context.Context, id int64) (*model.DutyRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func (m *mockDutyRecordRepo) Create(_ context.Context, record *model.DutyRecord) error {
	if m.err != nil {
		return m.err
	}
	record.ID = m.nextID
	m.nextID++
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockDutyRecordRepo) Update(_ context.Context, record *model.DutyRecord) error {
	if m.err != nil {
		return m.err
	}
	cur, ok := m.records[record.ID]
	if !ok || cur.Version != record.Version {
		return pkgerrors.ErrOptimisticLock
	}
	record.Version++
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockDutyRecordRepo) Delete(_ context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// ── Mock DutyTypeRepository ──

type mockDutyTypeRepo struct {
	types []model.DutyType
	err   error
}

func newMockDutyTypeRepo() *mockDutyTypeRepo {
	return &mockDutyTypeRepo{types: []model.DutyType{
		{Key: "day", Name: "白班", SortOrder: 1},
		{Key: "night", Name: "夜班", SortOrder: 2},
	}}
}

func (m *mockDutyTypeRepo) List(_ context.Context) ([]model.DutyType, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.types, nil
}

func (m *mockDutyTypeRepo) GetByKey(_ context.Context, key string) (*model.DutyType, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.types {
		if m.types[i].Key == key {
			t := m.types[i]
			return &t, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

// ── Mock RosterEngine ──

type mockEngine struct {
	mu sync.Mutex

	records     map[roster.ID]roster.Record
	span        *roster.Span
	navigateErr error
	viewErr     error
	status      roster.Status

	navigated []roster.Month
	writes    []roster.Record
	deletes   []roster.ID
}

func newMockEngine() *mockEngine {
	return &mockEngine{records: make(map[roster.ID]roster.Record)}
}

func (m *mockEngine) put(r roster.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
}

func (m *mockEngine) Navigate(_ context.Context, month roster.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigated = append(m.navigated, month)
	if m.navigateErr != nil {
		return m.navigateErr
	}
	if m.span == nil || !m.span.Contains(month) {
		s := roster.SpanAround(month, 1)
		m.span = &s
	}
	return nil
}

func (m *mockEngine) View(_ context.Context, month roster.Month) (roster.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewErr != nil {
		return roster.View{}, m.viewErr
	}
	v := roster.View{Month: month}
	for _, r := range m.records {
		if rm, err := r.Day.Month(); err == nil && rm == month {
			v.Records = append(v.Records, r)
		}
	}
	sort.Slice(v.Records, func(i, j int) bool {
		if v.Records[i].Day != v.Records[j].Day {
			return v.Records[i].Day < v.Records[j].Day
		}
		return v.Records[i].ID < v.Records[j].ID
	})
	if m.span != nil {
		s := *m.span
		v.Span = &s
		v.Covered = s.Contains(month)
	}
	return v, nil
}

func (m *mockEngine) Status(_ context.Context) (roster.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

func (m *mockEngine) ApplyLocalWrite(_ context.Context, r roster.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, r)
	m.records[r.ID] = r
	return nil
}

func (m *mockEngine) ApplyLocalDelete(_ context.Context, id roster.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	delete(m.records, id)
	return nil
}

// ── Mock Publisher ──

type publishedChange struct {
	kind roster.EventKind
	id   roster.ID
	rec  *roster.Record
}

type mockPublisher struct {
	changes []publishedChange
	err     error
}

func (m *mockPublisher) PublishChange(_ context.Context, kind roster.EventKind, id roster.ID, rec *roster.Record) error {
	m.changes = append(m.changes, publishedChange{kind: kind, id: id, rec: rec})
	return m.err
}

// ── Mock Transactor ──

// mockTransactor 以快照模拟事务：fn 失败或提交失败时恢复记录表，并记录提交时引擎已收到的登记数
type mockTransactor struct {
	repo      *repository.Repository
	records   *mockDutyRecordRepo
	engine    *mockEngine
	commitErr error

	commits         int
	writesAtCommit  []int
	deletesAtCommit []int
}

func (m *mockTransactor) InTx(_ context.Context, fn func(tx *repository.Repository) error) error {
	saved := make(map[int64]*model.DutyRecord, len(m.records.records))
	for id, r := range m.records.records {
		cp := *r
		saved[id] = &cp
	}
	nextID := m.records.nextID
	restore := func() {
		m.records.records = saved
		m.records.nextID = nextID
	}

	if err := fn(m.repo); err != nil {
		restore()
		return err
	}

	m.engine.mu.Lock()
	m.writesAtCommit = append(m.writesAtCommit, len(m.engine.writes))
	m.deletesAtCommit = append(m.deletesAtCommit, len(m.engine.deletes))
	m.engine.mu.Unlock()

	if m.commitErr != nil {
		restore()
		return m.commitErr
	}
	m.commits++
	return nil
}
