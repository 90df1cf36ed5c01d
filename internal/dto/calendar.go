package dto

// ── 日历视图 DTO ──

// 日历条目状态
const (
	CalendarAvailable = "available"
	CalendarBooked    = "booked"
	CalendarBlocked   = "blocked"
)

// CalendarRequest 日历查询参数，区间 [start, end)
type CalendarRequest struct {
	EventTypeID *string `form:"event_type_id" binding:"omitempty,uuid"`
	Start       string  `form:"start"         binding:"required,datetime=2006-01-02"`
	End         string  `form:"end"           binding:"required,datetime=2006-01-02"`
}

// CalendarEntry 日历条目
type CalendarEntry struct {
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	EventTypeID   string `json:"event_type_id"`
	Status        string `json:"status"`           // available | booked | blocked
	Reason        string `json:"reason,omitempty"` // blocked 时的原因
	BookingID     string `json:"booking_id,omitempty"`
	BookingStatus string `json:"booking_status,omitempty"`
}

// CalendarResponse 日历响应
type CalendarResponse struct {
	CoachID  string          `json:"coach_id"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Timezone string          `json:"timezone"`
	Entries  []CalendarEntry `json:"entries"`
}
