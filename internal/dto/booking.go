package dto

// ── 预约模块 DTO ──

// AnswerDTO 自定义问题回答；text / single_select 只取一个值
type AnswerDTO struct {
	QuestionID string   `json:"question_id" binding:"required,max=64"             validate:"required,max=64"`
	Values     []string `json:"values"      binding:"omitempty,max=20,dive,max=2000" validate:"omitempty,max=20,dive,max=2000"`
}

// RequesterDTO 预约人联系方式
type RequesterDTO struct {
	Name  string `json:"name"  binding:"required,min=1,max=100" validate:"required,min=1,max=100"`
	Email string `json:"email" binding:"required,email,max=255" validate:"required,email,max=255"`
	Phone string `json:"phone" binding:"omitempty,max=30"       validate:"omitempty,max=30"`
}

// ReserveRequest 预约请求
type ReserveRequest struct {
	CoachID     string       `json:"coach_id"      binding:"required,max=64"              validate:"required,max=64"`
	EventTypeID string       `json:"event_type_id" binding:"required,uuid"                validate:"required,uuid"`
	Date        string       `json:"date"          binding:"required,datetime=2006-01-02" validate:"required,datetime=2006-01-02"`
	StartTime   string       `json:"start_time"    binding:"required,len=5"               validate:"required,len=5"`
	Requester   RequesterDTO `json:"requester"     binding:"required"                     validate:"required"`
	Answers     []AnswerDTO  `json:"answers"       binding:"omitempty,max=20,dive"        validate:"omitempty,max=20,dive"`
}

// CancelBookingRequest 取消预约请求
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// RescheduleRequest 改期请求
type RescheduleRequest struct {
	Date      string `json:"date"       binding:"required,datetime=2006-01-02" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" binding:"required,len=5"               validate:"required,len=5"`
}

// MarkNotifiedRequest 消息投递方回调：更新确认/提醒发送标记
type MarkNotifiedRequest struct {
	ConfirmationSent *bool `json:"confirmation_sent"`
	ReminderSent     *bool `json:"reminder_sent"`
}

// BookingListRequest 预约列表查询参数
type BookingListRequest struct {
	CoachID string `form:"coach_id"`
	Status  string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed no_show"`
	Start   string `form:"start"  binding:"omitempty,datetime=2006-01-02"`
	End     string `form:"end"    binding:"omitempty,datetime=2006-01-02"`
	PaginationRequest
}

// BookingResponse 预约响应
type BookingResponse struct {
	ID               string       `json:"id"`
	CoachID          string       `json:"coach_id"`
	EventTypeID      string       `json:"event_type_id"`
	RuleID           *string      `json:"rule_id,omitempty"`
	Date             string       `json:"date"`
	StartTime        string       `json:"start_time"`
	EndTime          string       `json:"end_time"`
	Status           string       `json:"status"`
	RequesterID      *string      `json:"requester_id,omitempty"`
	Requester        RequesterDTO `json:"requester"`
	Answers          []AnswerDTO  `json:"answers"`
	CancelReason     string       `json:"cancel_reason,omitempty"`
	RescheduledFrom  *string      `json:"rescheduled_from,omitempty"`
	ConfirmedAt      *string      `json:"confirmed_at,omitempty"`
	CancelledAt      *string      `json:"cancelled_at,omitempty"`
	CompletedAt      *string      `json:"completed_at,omitempty"`
	ConfirmationSent bool         `json:"confirmation_sent"`
	ReminderSent     bool         `json:"reminder_sent"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
}

// BookingEvent 预约状态流转事件（由消息投递方异步消费）
type BookingEvent struct {
	Type           string `json:"type"` // booking.<status> | booking.reminder_due
	BookingID      string `json:"booking_id"`
	CoachID        string `json:"coach_id"`
	EventTypeID    string `json:"event_type_id"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	PreviousID     string `json:"previous_booking_id,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}
