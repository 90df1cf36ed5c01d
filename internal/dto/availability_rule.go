package dto

// ── 可预约规则模块 DTO ──

// TimeWindowDTO 时间窗口 [start_time, end_time)
type TimeWindowDTO struct {
	StartTime string `json:"start_time" binding:"required,len=5" validate:"required,len=5"`
	EndTime   string `json:"end_time"   binding:"required,len=5" validate:"required,len=5"`
}

// CreateRuleRequest 创建规则请求
//   - recurring：day_of_week + start_time + end_time
//   - specific_date：specific_date + windows
type CreateRuleRequest struct {
	CoachID      string          `json:"coach_id"      binding:"omitempty,max=64"                     validate:"omitempty,max=64"`
	EventTypeID  *string         `json:"event_type_id" binding:"omitempty,uuid"                       validate:"omitempty,uuid"`
	Kind         string          `json:"kind"          binding:"required,oneof=recurring specific_date" validate:"required,oneof=recurring specific_date"`
	DayOfWeek    *int            `json:"day_of_week"   binding:"omitempty,min=0,max=6"                validate:"omitempty,min=0,max=6"`
	StartTime    *string         `json:"start_time"    binding:"omitempty,len=5"                      validate:"omitempty,len=5"`
	EndTime      *string         `json:"end_time"      binding:"omitempty,len=5"                      validate:"omitempty,len=5"`
	SpecificDate *string         `json:"specific_date" binding:"omitempty,datetime=2006-01-02"        validate:"omitempty,datetime=2006-01-02"`
	Windows      []TimeWindowDTO `json:"windows"       binding:"omitempty,max=24,dive"                validate:"omitempty,max=24,dive"`
}

// UpdateRuleRequest 更新规则请求（形态不可变更）
type UpdateRuleRequest struct {
	DayOfWeek    *int            `json:"day_of_week"   binding:"omitempty,min=0,max=6"         validate:"omitempty,min=0,max=6"`
	StartTime    *string         `json:"start_time"    binding:"omitempty,len=5"               validate:"omitempty,len=5"`
	EndTime      *string         `json:"end_time"      binding:"omitempty,len=5"               validate:"omitempty,len=5"`
	SpecificDate *string         `json:"specific_date" binding:"omitempty,datetime=2006-01-02" validate:"omitempty,datetime=2006-01-02"`
	Windows      []TimeWindowDTO `json:"windows"       binding:"omitempty,max=24,dive"         validate:"omitempty,max=24,dive"`
	IsActive     *bool           `json:"is_active"`
}

// RuleListRequest 规则列表查询参数
type RuleListRequest struct {
	CoachID         string  `form:"coach_id"`
	EventTypeID     *string `form:"event_type_id" binding:"omitempty,uuid"`
	IncludeInactive bool    `form:"include_inactive"`
}

// RuleResponse 规则响应
type RuleResponse struct {
	ID           string          `json:"id"`
	CoachID      string          `json:"coach_id"`
	EventTypeID  *string         `json:"event_type_id,omitempty"`
	Kind         string          `json:"kind"`
	DayOfWeek    *int            `json:"day_of_week,omitempty"`
	StartTime    *string         `json:"start_time,omitempty"`
	EndTime      *string         `json:"end_time,omitempty"`
	SpecificDate *string         `json:"specific_date,omitempty"`
	Windows      []TimeWindowDTO `json:"windows,omitempty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

// DeactivateRuleResponse 停用规则响应：停用从不阻塞，但会提示仍引用该规则的预约数
type DeactivateRuleResponse struct {
	Rule             RuleResponse `json:"rule"`
	AffectedBookings int64        `json:"affected_bookings"`
	Warning          string       `json:"warning,omitempty"`
}
