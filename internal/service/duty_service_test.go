package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"duty-roster/internal/dto"
	"duty-roster/internal/repository"
	"duty-roster/internal/roster"
)

// ── 测试辅助 ──

type dutyFixture struct {
	svc       DutyService
	records   *mockDutyRecordRepo
	types     *mockDutyTypeRepo
	engine    *mockEngine
	publisher *mockPublisher
	tx        *mockTransactor
}

func setupTestDutyService() *dutyFixture {
	fx := &dutyFixture{
		records:   newMockDutyRecordRepo(),
		types:     newMockDutyTypeRepo(),
		engine:    newMockEngine(),
		publisher: &mockPublisher{},
	}
	repo := &repository.Repository{DutyRecord: fx.records, DutyType: fx.types}
	fx.tx = &mockTransactor{repo: repo, records: fx.records, engine: fx.engine}
	svc := NewDutyService(repo, fx.engine, fx.publisher, zap.NewNop()).(*dutyService)
	svc.tx = fx.tx
	fx.svc = svc
	return fx
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// ── ParseDutyDate 测试 ──

func TestParseDutyDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    roster.DateKey
		wantErr bool
	}{
		{"纯日期", "2024-03-15", "2024-03-15", false},
		{"UTC 晚间跨入参考时区次日", "2024-03-15T22:30:00Z", "2024-03-16", false},
		{"UTC 傍晚仍为当日", "2024-03-15T20:59:59Z", "2024-03-15", false},
		{"带时区偏移", "2024-03-16T01:00:00+05:00", "2024-03-15", false},
		{"非法日期", "2024-02-30", "", true},
		{"非法格式", "15/03/2024", "", true},
		{"空字符串", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDutyDate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrDutyDateInvalid) {
					t.Errorf("期望 ErrDutyDateInvalid，实际: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("不应报错: %v", err)
			}
			if got != tt.want {
				t.Errorf("期望 %s，实际 %s", tt.want, got)
			}
		})
	}
}

// ── Create 测试 ──

func TestDutyService_Create_Success(t *testing.T) {
	fx := setupTestDutyService()

	resp, err := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{
		TraderLabel: "  张三 ",
		DutyDate:    "2024-03-15T22:00:00Z",
		DutyTypeKey: strPtr("night"),
	})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if resp.ID != "1" || resp.TraderLabel != "张三" || resp.Day != "2024-03-16" || resp.Version != 1 {
		t.Errorf("响应不符合预期: %+v", resp)
	}

	if len(fx.engine.writes) != 1 || fx.engine.writes[0].ID != "1" {
		t.Fatalf("写入应登记到引擎，实际: %+v", fx.engine.writes)
	}
	if fx.engine.writes[0].Day != "2024-03-16" {
		t.Errorf("引擎记录日期错误: %s", fx.engine.writes[0].Day)
	}
	if len(fx.publisher.changes) != 1 || fx.publisher.changes[0].kind != roster.EventInsert {
		t.Errorf("应发布一条 INSERT，实际: %+v", fx.publisher.changes)
	}
}

func TestDutyService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     dto.CreateDutyRecordRequest
		wantErr error
	}{
		{"值班人为空", dto.CreateDutyRecordRequest{TraderLabel: "  ", DutyDate: "2024-03-15"}, ErrDutyLabelEmpty},
		{"日期非法", dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-13-01"}, ErrDutyDateInvalid},
		{"类型不存在", dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15", DutyTypeKey: strPtr("weekend")}, ErrDutyTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setupTestDutyService()
			_, err := fx.svc.Create(context.Background(), &tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("期望 %v，实际: %v", tt.wantErr, err)
			}
			if len(fx.records.records) != 0 || len(fx.engine.writes) != 0 || len(fx.publisher.changes) != 0 {
				t.Error("校验失败时不应产生任何写入")
			}
		})
	}
}

func TestDutyService_Create_RepoError(t *testing.T) {
	fx := setupTestDutyService()
	fx.records.err = errors.New("db down")

	_, err := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})
	if err == nil {
		t.Fatal("仓储失败应返回错误")
	}
	if len(fx.engine.writes) != 0 {
		t.Error("落库失败不应登记到引擎")
	}
}

func TestDutyService_Create_PublishFailureIgnored(t *testing.T) {
	fx := setupTestDutyService()
	fx.publisher.err = errors.New("redis down")

	if _, err := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"}); err != nil {
		t.Fatalf("发布失败不应影响写入结果: %v", err)
	}
	if len(fx.records.records) != 1 {
		t.Error("记录应已落库")
	}
}

// ── Update 测试 ──

func TestDutyService_Update_MovesDay(t *testing.T) {
	fx := setupTestDutyService()
	created, _ := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})

	resp, err := fx.svc.Update(context.Background(), created.ID, &dto.UpdateDutyRecordRequest{
		DutyDate: strPtr("2024-04-01"),
		Approved: boolPtr(true),
		Version:  1,
	})
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if resp.Day != "2024-04-01" || !resp.Approved || resp.Version != 2 {
		t.Errorf("响应不符合预期: %+v", resp)
	}
	last := fx.engine.writes[len(fx.engine.writes)-1]
	if last.Day != "2024-04-01" || !last.Approved {
		t.Errorf("引擎应收到更新后的记录，实际: %+v", last)
	}
	if fx.publisher.changes[len(fx.publisher.changes)-1].kind != roster.EventUpdate {
		t.Error("应发布 UPDATE")
	}
}

func TestDutyService_Update_ClearDutyType(t *testing.T) {
	fx := setupTestDutyService()
	created, _ := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15", DutyTypeKey: strPtr("day")})

	resp, err := fx.svc.Update(context.Background(), created.ID, &dto.UpdateDutyRecordRequest{DutyTypeKey: strPtr(""), Version: 1})
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if resp.DutyTypeKey != nil {
		t.Errorf("空字符串应清除值班类型，实际: %v", *resp.DutyTypeKey)
	}
}

func TestDutyService_Update_VersionConflict(t *testing.T) {
	fx := setupTestDutyService()
	created, _ := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})

	_, err := fx.svc.Update(context.Background(), created.ID, &dto.UpdateDutyRecordRequest{TraderLabel: strPtr("李四"), Version: 5})
	if !errors.Is(err, ErrDutyVersionConflict) {
		t.Errorf("期望 ErrDutyVersionConflict，实际: %v", err)
	}
	if len(fx.engine.writes) != 1 {
		t.Error("冲突时不应再次登记到引擎")
	}
}

func TestDutyService_Update_NotFound(t *testing.T) {
	fx := setupTestDutyService()

	for _, id := range []string{"42", "abc"} {
		_, err := fx.svc.Update(context.Background(), id, &dto.UpdateDutyRecordRequest{Version: 1})
		if !errors.Is(err, ErrDutyRecordNotFound) {
			t.Errorf("id=%s 期望 ErrDutyRecordNotFound，实际: %v", id, err)
		}
	}
}

// ── Delete 测试 ──

func TestDutyService_Delete_Success(t *testing.T) {
	fx := setupTestDutyService()
	created, _ := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})

	if err := fx.svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if len(fx.engine.deletes) != 1 || fx.engine.deletes[0] != roster.ID(created.ID) {
		t.Errorf("删除应登记到引擎，实际: %+v", fx.engine.deletes)
	}
	last := fx.publisher.changes[len(fx.publisher.changes)-1]
	if last.kind != roster.EventDelete || last.rec != nil {
		t.Errorf("应发布不带记录体的 DELETE，实际: %+v", last)
	}
}

func TestDutyService_Delete_NotFound(t *testing.T) {
	fx := setupTestDutyService()

	if err := fx.svc.Delete(context.Background(), "7"); !errors.Is(err, ErrDutyRecordNotFound) {
		t.Errorf("期望 ErrDutyRecordNotFound，实际: %v", err)
	}
	if len(fx.engine.deletes) != 0 {
		t.Error("不存在的记录不应登记删除")
	}
}

// ── 事务与引擎登记顺序 ──

func TestDutyService_RegistersBeforeCommit(t *testing.T) {
	fx := setupTestDutyService()
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if _, err := fx.svc.Update(ctx, created.ID, &dto.UpdateDutyRecordRequest{Version: 1, Approved: boolPtr(true)}); err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if err := fx.svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}

	if fx.tx.commits != 3 {
		t.Fatalf("期望 3 次提交，实际 %d", fx.tx.commits)
	}
	// 每次提交时引擎都已收到对应登记，推送回声不会早于登记到达
	wantWrites := []int{1, 2, 2}
	wantDeletes := []int{0, 0, 1}
	for i := range wantWrites {
		if fx.tx.writesAtCommit[i] != wantWrites[i] || fx.tx.deletesAtCommit[i] != wantDeletes[i] {
			t.Errorf("第 %d 次提交时登记数为 写入=%d 删除=%d，期望 写入=%d 删除=%d", i+1,
				fx.tx.writesAtCommit[i], fx.tx.deletesAtCommit[i], wantWrites[i], wantDeletes[i])
		}
	}
}

func TestDutyService_Create_CommitFailureUnregisters(t *testing.T) {
	fx := setupTestDutyService()
	fx.tx.commitErr = errors.New("commit failed")

	_, err := fx.svc.Create(context.Background(), &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})
	if err == nil {
		t.Fatal("提交失败应返回错误")
	}
	if len(fx.engine.writes) != 1 || len(fx.engine.deletes) != 1 || fx.engine.deletes[0] != fx.engine.writes[0].ID {
		t.Errorf("提交失败后应撤销引擎中的登记，writes=%+v deletes=%+v", fx.engine.writes, fx.engine.deletes)
	}
	if len(fx.engine.records) != 0 {
		t.Errorf("引擎中不应残留未提交的记录，实际 %d 条", len(fx.engine.records))
	}
	if len(fx.publisher.changes) != 0 {
		t.Error("未提交的写入不应发布")
	}
}

func TestDutyService_Update_CommitFailureRestores(t *testing.T) {
	fx := setupTestDutyService()
	ctx := context.Background()
	created, _ := fx.svc.Create(ctx, &dto.CreateDutyRecordRequest{TraderLabel: "张三", DutyDate: "2024-03-15"})
	published := len(fx.publisher.changes)

	fx.tx.commitErr = errors.New("commit failed")
	_, err := fx.svc.Update(ctx, created.ID, &dto.UpdateDutyRecordRequest{Version: 1, TraderLabel: strPtr("李四")})
	if err == nil {
		t.Fatal("提交失败应返回错误")
	}

	got := fx.engine.records[roster.ID(created.ID)]
	if got.TraderLabel != "张三" {
		t.Errorf("提交失败后引擎应恢复为库中的记录，实际值班人 %q", got.TraderLabel)
	}
	if len(fx.publisher.changes) != published {
		t.Error("未提交的更新不应发布")
	}
}
