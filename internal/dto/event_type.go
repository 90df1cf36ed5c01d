package dto

// ── 活动类型模块 DTO ──

// CustomQuestionDTO 自定义问题定义
type CustomQuestionDTO struct {
	QuestionID string   `json:"question_id" binding:"required,max=64"      validate:"required,max=64"`
	Label      string   `json:"label"       binding:"required,max=200"     validate:"required,max=200"`
	Type       string   `json:"type"        binding:"required,oneof=text single_select multi_select" validate:"required,oneof=text single_select multi_select"`
	Required   bool     `json:"required"`
	Options    []string `json:"options"     binding:"omitempty,dive,required,max=100" validate:"omitempty,dive,required,max=100"`
}

// UpsertEventTypeRequest 创建或更新活动类型请求（EventTypeID 为空时创建）
type UpsertEventTypeRequest struct {
	EventTypeID          string              `json:"event_type_id"          binding:"omitempty,uuid"                 validate:"omitempty,uuid"`
	CoachID              string              `json:"coach_id"               binding:"omitempty,max=64"               validate:"omitempty,max=64"` // 仅管理员可代教练创建
	Name                 string              `json:"name"                   binding:"required,min=2,max=100"         validate:"required,min=2,max=100"`
	Kind                 string              `json:"kind"                   binding:"required,oneof=consultation_call campus_tour shadow_day" validate:"required,oneof=consultation_call campus_tour shadow_day"`
	DurationMinutes      int                 `json:"duration_minutes"       binding:"required,min=5,max=720"        validate:"required,min=5,max=720"`
	BufferBeforeMinutes  int                 `json:"buffer_before_minutes"  binding:"min=0,max=240"                 validate:"min=0,max=240"`
	BufferAfterMinutes   int                 `json:"buffer_after_minutes"   binding:"min=0,max=240"                 validate:"min=0,max=240"`
	MaxBookingsPerDay    int                 `json:"max_bookings_per_day"   binding:"min=0,max=100"                 validate:"min=0,max=100"`
	AdvanceNoticeHours   int                 `json:"advance_notice_hours"   binding:"min=0,max=2160"                validate:"min=0,max=2160"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	AllowCancellation    bool                `json:"allow_cancellation"`
	AllowReschedule      bool                `json:"allow_reschedule"`
	Questions            []CustomQuestionDTO `json:"questions"              binding:"omitempty,max=20,dive"         validate:"omitempty,max=20,dive"`
	Version              int                 `json:"version"                binding:"omitempty,min=1"               validate:"omitempty,min=1"` // 更新时携带，用于乐观锁
}

// EventTypeListRequest 活动类型列表查询参数
type EventTypeListRequest struct {
	CoachID         string `form:"coach_id"`
	IncludeInactive bool   `form:"include_inactive"`
}

// EventTypeResponse 活动类型响应
type EventTypeResponse struct {
	ID                   string              `json:"id"`
	CoachID              string              `json:"coach_id"`
	Name                 string              `json:"name"`
	Kind                 string              `json:"kind"`
	DurationMinutes      int                 `json:"duration_minutes"`
	BufferBeforeMinutes  int                 `json:"buffer_before_minutes"`
	BufferAfterMinutes   int                 `json:"buffer_after_minutes"`
	MaxBookingsPerDay    int                 `json:"max_bookings_per_day"`
	AdvanceNoticeHours   int                 `json:"advance_notice_hours"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	AllowCancellation    bool                `json:"allow_cancellation"`
	AllowReschedule      bool                `json:"allow_reschedule"`
	Questions            []CustomQuestionDTO `json:"questions"`
	IsActive             bool                `json:"is_active"`
	Version              int                 `json:"version"`
	CreatedAt            string              `json:"created_at"`
	UpdatedAt            string              `json:"updated_at"`
}
