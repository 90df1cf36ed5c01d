package scheduling

import (
	"sort"
	"time"

	"admitcoach/scheduler/internal/model"
)

// BlockReason 时段不可预约的原因（按检查顺序取第一个失败项）
type BlockReason string

const (
	ReasonNone          BlockReason = ""
	ReasonAdvanceNotice BlockReason = "advance_notice"
	ReasonBooked        BlockReason = "booked"
	ReasonDailyCap      BlockReason = "daily_cap"
	ReasonBuffer        BlockReason = "buffer"
)

// TimeSlot 由规则派生的具体时段 [StartTime, EndTime)，不落库
type TimeSlot struct {
	CoachID     string      `json:"coach_id"`
	EventTypeID string      `json:"event_type_id"`
	RuleID      string      `json:"rule_id"`
	Date        time.Time   `json:"date"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`
	Bookable    bool        `json:"bookable"`
	Reason      BlockReason `json:"reason,omitempty"`
}

// Input 时段生成的全部输入，除此之外不读取任何外部状态
type Input struct {
	CoachID    string
	EventType  *model.EventType
	Rules      []model.AvailabilityRule
	Bookings   []model.Booking
	RangeStart time.Time // 含
	RangeEnd   time.Time // 不含
	Now        time.Time
	Location   *time.Location

	// BookedBuffers 已有预约所属活动类型的缓冲，按 event_type_id 索引
	// 缺失的活动类型按候选时段缓冲的较大值计
	BookedBuffers map[string]Buffers

	// ExcludeBookingID 改期时忽略原预约本身
	ExcludeBookingID string
}

// Buffers 活动类型的前后缓冲（分钟）
type Buffers struct {
	Before int
	After  int
}

// BuffersOf 按 event_type_id 提取缓冲
func BuffersOf(ets []model.EventType) map[string]Buffers {
	out := make(map[string]Buffers, len(ets))
	for i := range ets {
		out[ets[i].EventTypeID] = Buffers{Before: ets[i].BufferBeforeMinutes, After: ets[i].BufferAfterMinutes}
	}
	return out
}

// bookedInterval 某日已占用的区间及其所属活动类型的缓冲
type bookedInterval struct {
	start, end    Clock
	before, after Clock
	eventTypeID   string
}

// GenerateSlots 按日展开规则、按时长切分窗口，并逐个判定可预约性
//
// 输出按 (date, start) 升序，同一 (date, start) 只出现一次（输入顺序中先出现的规则胜出）。
// 纯函数：相同输入得到相同输出。
func GenerateSlots(in Input) []TimeSlot {
	et := in.EventType
	if et == nil || et.DurationMinutes <= 0 || !in.RangeStart.Before(in.RangeEnd) {
		return nil
	}
	duration := Clock(et.DurationMinutes)
	earliest := in.Now.Add(time.Duration(et.AdvanceNoticeHours) * time.Hour)

	byDate := indexBookings(in)

	var result []TimeSlot
	end := DateOf(in.RangeEnd)
	for d := DateOf(in.RangeStart); d.Before(end); d = d.AddDate(0, 0, 1) {
		booked := byDate[DateKey(d)]
		dayCount := 0
		for _, b := range booked {
			if b.eventTypeID == et.EventTypeID {
				dayCount++
			}
		}

		seen := make(map[Clock]bool)
		var daySlots []TimeSlot
		for i := range in.Rules {
			rule := &in.Rules[i]
			if !ruleAppliesOn(rule, in.CoachID, et.EventTypeID, d) {
				continue
			}
			for _, w := range rule.EffectiveWindows() {
				ws, we, err := ValidWindow(w.StartTime, w.EndTime)
				if err != nil {
					continue
				}
				// 按时长平铺，尾部不足一个时长的部分丢弃
				for start := ws; start+duration <= we; start += duration {
					if seen[start] {
						continue
					}
					seen[start] = true

					slot := TimeSlot{
						CoachID:     in.CoachID,
						EventTypeID: et.EventTypeID,
						RuleID:      rule.RuleID,
						Date:        d,
						StartTime:   start.String(),
						EndTime:     (start + duration).String(),
					}
					slot.Reason = checkSlot(et, d, start, start+duration, booked, dayCount, earliest, in.Location)
					slot.Bookable = slot.Reason == ReasonNone
					daySlots = append(daySlots, slot)
				}
			}
		}

		sort.SliceStable(daySlots, func(i, j int) bool {
			return daySlots[i].StartTime < daySlots[j].StartTime
		})
		result = append(result, daySlots...)
	}
	return result
}

// Available 仅保留可预约时段
func Available(slots []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Bookable {
			out = append(out, s)
		}
	}
	return out
}

// Find 按 (date, startTime) 查找时段
func Find(slots []TimeSlot, date time.Time, startTime string) (TimeSlot, bool) {
	key := DateKey(date)
	for _, s := range slots {
		if s.StartTime == startTime && DateKey(s.Date) == key {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// ── 内部辅助方法 ──

// checkSlot 依次检查：提前量 → 精确占用 → 每日上限 → 教练级缓冲
func checkSlot(et *model.EventType, d time.Time, start, end Clock,
	booked []bookedInterval, dayCount int, earliest time.Time, loc *time.Location) BlockReason {
	if Instant(d, start, loc).Before(earliest) {
		return ReasonAdvanceNotice
	}
	for _, b := range booked {
		if b.start == start {
			return ReasonBooked
		}
	}
	if et.MaxBookingsPerDay > 0 && dayCount >= et.MaxBookingsPerDay {
		return ReasonDailyCap
	}
	before := Clock(et.BufferBeforeMinutes)
	after := Clock(et.BufferAfterMinutes)
	for _, b := range booked {
		// 先后两个区间的间距不小于 max(前者后置缓冲, 后者前置缓冲)，与预约先后无关
		if start < b.end+maxClock(b.after, before) && end+maxClock(after, b.before) > b.start {
			return ReasonBuffer
		}
	}
	return ReasonNone
}

func maxClock(a, b Clock) Clock {
	if a > b {
		return a
	}
	return b
}

// ruleAppliesOn 规则在日期 d 是否生效
func ruleAppliesOn(r *model.AvailabilityRule, coachID, eventTypeID string, d time.Time) bool {
	if !r.IsActive || r.CoachID != coachID || !r.AppliesTo(eventTypeID) {
		return false
	}
	switch r.Kind {
	case model.RuleKindRecurring:
		return r.DayOfWeek != nil && *r.DayOfWeek == int(d.Weekday())
	case model.RuleKindSpecificDate:
		return r.SpecificDate != nil && DateOf(*r.SpecificDate).Equal(d)
	}
	return false
}

// indexBookings 按日期归集该教练仍占用时段的预约
func indexBookings(in Input) map[string][]bookedInterval {
	et := in.EventType
	fallback := Clock(et.BufferBeforeMinutes)
	if a := Clock(et.BufferAfterMinutes); a > fallback {
		fallback = a
	}

	out := make(map[string][]bookedInterval)
	for i := range in.Bookings {
		b := &in.Bookings[i]
		if b.CoachID != in.CoachID || !b.IsActive() || b.BookingID == in.ExcludeBookingID {
			continue
		}
		s, e, err := ValidWindow(b.StartTime, b.EndTime)
		if err != nil {
			continue
		}
		iv := bookedInterval{start: s, end: e, before: fallback, after: fallback, eventTypeID: b.EventTypeID}
		if buf, ok := in.BookedBuffers[b.EventTypeID]; ok {
			iv.before, iv.after = Clock(buf.Before), Clock(buf.After)
		} else if b.EventTypeID == et.EventTypeID {
			iv.before, iv.after = Clock(et.BufferBeforeMinutes), Clock(et.BufferAfterMinutes)
		}
		key := DateKey(b.BookingDate)
		out[key] = append(out[key], iv)
	}
	return out
}

// [自证通过] internal/scheduling/generator.go
