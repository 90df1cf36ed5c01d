package model

import (
	"time"

	"gorm.io/datatypes"
)

// 规则形态
const (
	RuleKindRecurring    = "recurring"
	RuleKindSpecificDate = "specific_date"
)

// TimeWindow 时间窗口 [StartTime, EndTime)，格式 "HH:MM"
type TimeWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// AvailabilityRule 教练可预约规则表，对应 availability_rules
//   - recurring：DayOfWeek(0=周日) + StartTime/EndTime，每周重复
//   - specific_date：SpecificDate + Windows，仅当天有效（叠加在每周规则之上）
type AvailabilityRule struct {
	RuleID       string                          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"rule_id"`
	CoachID      string                          `gorm:"type:varchar(64);not null"                      json:"coach_id"`
	EventTypeID  *string                         `gorm:"type:uuid"                                      json:"event_type_id,omitempty"` // NULL 表示适用于该教练所有活动类型
	Kind         string                          `gorm:"type:varchar(20);not null"                      json:"kind"`
	DayOfWeek    *int                            `gorm:"type:smallint"                                  json:"day_of_week,omitempty"`
	StartTime    *string                         `gorm:"type:varchar(5)"                                json:"start_time,omitempty"`
	EndTime      *string                         `gorm:"type:varchar(5)"                                json:"end_time,omitempty"`
	SpecificDate *time.Time                      `gorm:"type:date"                                      json:"specific_date,omitempty"`
	Windows      datatypes.JSONSlice[TimeWindow] `gorm:"type:jsonb;not null;default:'[]'"               json:"windows"`
	IsActive     bool                            `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (AvailabilityRule) TableName() string { return "availability_rules" }

// EffectiveWindows 返回规则的全部时间窗口（两种形态统一为窗口列表）
func (r *AvailabilityRule) EffectiveWindows() []TimeWindow {
	if r.Kind == RuleKindRecurring {
		if r.StartTime == nil || r.EndTime == nil {
			return nil
		}
		return []TimeWindow{{StartTime: *r.StartTime, EndTime: *r.EndTime}}
	}
	return r.Windows
}

// AppliesTo 规则是否适用于指定活动类型
func (r *AvailabilityRule) AppliesTo(eventTypeID string) bool {
	return r.EventTypeID == nil || *r.EventTypeID == eventTypeID
}
