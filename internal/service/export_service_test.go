package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"duty-roster/internal/roster"
)

// ── 测试辅助 ──

func setupTestExportService() (ExportService, *mockEngine, *mockDutyTypeRepo) {
	rosterSvc, engine, types := setupTestRosterService()
	return NewExportService(rosterSvc, zap.NewNop()), engine, types
}

// ── ExportMonth 测试 ──

func TestExportService_ExportMonth_NoRecords(t *testing.T) {
	svc, _, _ := setupTestExportService()

	_, _, err := svc.ExportMonth(context.Background(), "2024-03")
	if !errors.Is(err, ErrExportNoRecords) {
		t.Errorf("期望 ErrExportNoRecords，实际: %v", err)
	}
}

func TestExportService_ExportMonth_InvalidMonth(t *testing.T) {
	svc, _, _ := setupTestExportService()

	_, _, err := svc.ExportMonth(context.Background(), "bad")
	if !errors.Is(err, ErrMonthInvalid) {
		t.Errorf("期望 ErrMonthInvalid，实际: %v", err)
	}
}

func TestExportService_ExportMonth_Success(t *testing.T) {
	svc, engine, _ := setupTestExportService()
	night := "night"
	unknown := "standby"
	engine.put(roster.Record{ID: "1", Day: "2024-03-15", TraderLabel: "张三", DutyTypeKey: &night, Approved: true})
	engine.put(roster.Record{ID: "2", Day: "2024-03-15", TraderLabel: "李四", DutyTypeKey: &unknown})
	engine.put(roster.Record{ID: "3", Day: "2024-03-01", TraderLabel: "王五"})

	buf, filename, err := svc.ExportMonth(context.Background(), "2024-03")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "值班表_2024-03.xlsx" {
		t.Errorf("文件名错误: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("生成的文件无法解析: %v", err)
	}
	defer f.Close()

	expect := map[string]string{
		"A1": "2024-03 值班表",
		"A2": "日期",
		"A3": "2024-03-01",
		"B3": "周五",
		"C3": "王五",
		"D3": "-",
		"E3": "待审批",
		"A4": "2024-03-15",
		"C4": "张三",
		"D4": "夜班",
		"E4": "已审批",
		"C5": "李四",
		"D5": "standby",
	}
	for axis, want := range expect {
		got, err := f.GetCellValue("值班表", axis)
		if err != nil {
			t.Fatalf("读取 %s 失败: %v", axis, err)
		}
		if got != want {
			t.Errorf("%s 期望 %q，实际 %q", axis, want, got)
		}
	}
}
