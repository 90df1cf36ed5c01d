package model

import "gorm.io/datatypes"

// 活动类型种类
const (
	EventKindConsultationCall = "consultation_call"
	EventKindCampusTour       = "campus_tour"
	EventKindShadowDay        = "shadow_day"
)

// 自定义问题类型
const (
	QuestionTypeText         = "text"
	QuestionTypeSingleSelect = "single_select"
	QuestionTypeMultiSelect  = "multi_select"
)

// CustomQuestion 预约时需要家庭回答的自定义问题
type CustomQuestion struct {
	QuestionID string   `json:"question_id"`
	Label      string   `json:"label"`
	Type       string   `json:"type"` // text | single_select | multi_select
	Required   bool     `json:"required"`
	Options    []string `json:"options,omitempty"`
}

// EventType 可预约活动类型表，对应 event_types
type EventType struct {
	EventTypeID          string                              `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_type_id"`
	CoachID              string                              `gorm:"type:varchar(64);not null"                      json:"coach_id"`
	Name                 string                              `gorm:"type:varchar(100);not null"                     json:"name"`
	Kind                 string                              `gorm:"type:varchar(30);not null"                      json:"kind"`
	DurationMinutes      int                                 `gorm:"not null"                                       json:"duration_minutes"`
	BufferBeforeMinutes  int                                 `gorm:"not null;default:0"                             json:"buffer_before_minutes"`
	BufferAfterMinutes   int                                 `gorm:"not null;default:0"                             json:"buffer_after_minutes"`
	MaxBookingsPerDay    int                                 `gorm:"not null;default:0"                             json:"max_bookings_per_day"` // 0 表示不限
	AdvanceNoticeHours   int                                 `gorm:"not null;default:0"                             json:"advance_notice_hours"`
	RequiresConfirmation bool                                `gorm:"not null;default:false"                         json:"requires_confirmation"`
	AllowCancellation    bool                                `gorm:"not null;default:true"                          json:"allow_cancellation"`
	AllowReschedule      bool                                `gorm:"not null;default:true"                          json:"allow_reschedule"`
	Questions            datatypes.JSONSlice[CustomQuestion] `gorm:"type:jsonb;not null;default:'[]'"               json:"questions"`
	IsActive             bool                                `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel
}

// TableName 指定表名
func (EventType) TableName() string { return "event_types" }

// Clone 深拷贝，自定义问题及其选项、审计指针均不与原值共享
func (et *EventType) Clone() *EventType {
	cp := *et
	if et.Questions != nil {
		cp.Questions = make(datatypes.JSONSlice[CustomQuestion], len(et.Questions))
		for i, q := range et.Questions {
			if q.Options != nil {
				q.Options = append([]string(nil), q.Options...)
			}
			cp.Questions[i] = q
		}
	}
	cp.CreatedBy = cloneString(et.CreatedBy)
	cp.UpdatedBy = cloneString(et.UpdatedBy)
	return &cp
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
