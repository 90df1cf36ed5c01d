package scheduling

import (
	"reflect"
	"testing"
	"time"

	"admitcoach/scheduler/internal/model"
)

// ── 测试辅助 ──

var (
	monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	friday = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
)

func callEventType() *model.EventType {
	return &model.EventType{
		EventTypeID:         "et-call",
		CoachID:             "coach-1",
		Name:                "Consultation call",
		Kind:                model.EventKindConsultationCall,
		DurationMinutes:     30,
		BufferBeforeMinutes: 5,
		BufferAfterMinutes:  5,
		MaxBookingsPerDay:   2,
		AdvanceNoticeHours:  24,
		IsActive:            true,
	}
}

func recurring(id string, dow int, start, end string) model.AvailabilityRule {
	return model.AvailabilityRule{
		RuleID: id, CoachID: "coach-1", Kind: model.RuleKindRecurring,
		DayOfWeek: &dow, StartTime: &start, EndTime: &end, IsActive: true,
	}
}

func specific(id string, date time.Time, windows ...model.TimeWindow) model.AvailabilityRule {
	return model.AvailabilityRule{
		RuleID: id, CoachID: "coach-1", Kind: model.RuleKindSpecificDate,
		SpecificDate: &date, Windows: windows, IsActive: true,
	}
}

func booking(id, eventTypeID string, date time.Time, start, end, status string) model.Booking {
	return model.Booking{
		BookingID: id, CoachID: "coach-1", EventTypeID: eventTypeID,
		BookingDate: date, StartTime: start, EndTime: end, Status: status,
	}
}

func baseInput() Input {
	return Input{
		CoachID:    "coach-1",
		EventType:  callEventType(),
		Rules:      []model.AvailabilityRule{recurring("r-mon", 1, "09:00", "10:00")},
		RangeStart: monday,
		RangeEnd:   monday.AddDate(0, 0, 1),
		Now:        friday,
		Location:   time.UTC,
	}
}

func starts(slots []TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

// ════════════════════════════════════════════════════════════
// Clock
// ════════════════════════════════════════════════════════════

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"9:30", 0, true},
		{"09:60", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if Clock(570).String() != "09:30" {
		t.Errorf("String() = %s", Clock(570).String())
	}
}

func TestValidWindow_RejectsInverted(t *testing.T) {
	if _, _, err := ValidWindow("10:00", "09:00"); err == nil {
		t.Error("期望 start >= end 时报错")
	}
	if _, _, err := ValidWindow("10:00", "10:00"); err == nil {
		t.Error("期望 start == end 时报错")
	}
}

// ════════════════════════════════════════════════════════════
// GenerateSlots
// ════════════════════════════════════════════════════════════

func TestGenerateSlots_TilesWindowExactly(t *testing.T) {
	slots := GenerateSlots(baseInput())

	if got := starts(slots); !reflect.DeepEqual(got, []string{"09:00", "09:30"}) {
		t.Fatalf("期望 [09:00 09:30]，得到 %v", got)
	}
	for _, s := range slots {
		if !s.Bookable {
			t.Errorf("%s 应可预约，原因 %q", s.StartTime, s.Reason)
		}
		if s.RuleID != "r-mon" || s.CoachID != "coach-1" || s.EventTypeID != "et-call" {
			t.Errorf("时段标签错误: %+v", s)
		}
	}
	if slots[1].EndTime != "10:00" {
		t.Errorf("期望最后一个时段结束于 10:00，得到 %s", slots[1].EndTime)
	}
}

func TestGenerateSlots_DropsTail(t *testing.T) {
	in := baseInput()
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "10:20")}

	if got := starts(GenerateSlots(in)); !reflect.DeepEqual(got, []string{"09:00", "09:30"}) {
		t.Errorf("尾部 20 分钟应丢弃，得到 %v", got)
	}
}

func TestGenerateSlots_WindowShorterThanDuration(t *testing.T) {
	in := baseInput()
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "09:20")}

	if slots := GenerateSlots(in); len(slots) != 0 {
		t.Errorf("窗口短于时长不应产生时段，得到 %v", starts(slots))
	}
}

func TestGenerateSlots_SkipsOtherWeekdaysAndInactive(t *testing.T) {
	in := baseInput()
	inactive := recurring("r-off", 1, "13:00", "14:00")
	inactive.IsActive = false
	in.Rules = []model.AvailabilityRule{
		recurring("r-tue", 2, "09:00", "10:00"),
		inactive,
	}

	if slots := GenerateSlots(in); len(slots) != 0 {
		t.Errorf("期望无时段，得到 %v", starts(slots))
	}
}

func TestGenerateSlots_SundayIsZero(t *testing.T) {
	in := baseInput()
	sunday := monday.AddDate(0, 0, -1)
	in.RangeStart, in.RangeEnd = sunday, sunday.AddDate(0, 0, 1)
	in.Rules = []model.AvailabilityRule{recurring("r-sun", 0, "09:00", "09:30")}

	if slots := GenerateSlots(in); len(slots) != 1 {
		t.Errorf("期望周日 1 个时段，得到 %d", len(slots))
	}
}

func TestGenerateSlots_RuleScopedToOtherEventType(t *testing.T) {
	in := baseInput()
	other := "et-tour"
	scoped := recurring("r-tour", 1, "13:00", "14:00")
	scoped.EventTypeID = &other
	in.Rules = append(in.Rules, scoped)

	if got := starts(GenerateSlots(in)); !reflect.DeepEqual(got, []string{"09:00", "09:30"}) {
		t.Errorf("其他活动类型的规则应忽略，得到 %v", got)
	}
}

func TestGenerateSlots_SpecificDateIsAdditive(t *testing.T) {
	in := baseInput()
	in.Rules = append(in.Rules, specific("r-extra", monday,
		model.TimeWindow{StartTime: "14:00", EndTime: "15:00"},
	))

	got := starts(GenerateSlots(in))
	want := []string{"09:00", "09:30", "14:00", "14:30"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("期望 %v，得到 %v", want, got)
	}
}

func TestGenerateSlots_DeduplicatesOverlappingRules(t *testing.T) {
	in := baseInput()
	in.Rules = []model.AvailabilityRule{
		recurring("r-a", 1, "09:00", "10:00"),
		specific("r-b", monday, model.TimeWindow{StartTime: "09:30", EndTime: "10:30"}),
	}

	slots := GenerateSlots(in)
	got := starts(slots)
	want := []string{"09:00", "09:30", "10:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v，得到 %v", want, got)
	}
	if slots[1].RuleID != "r-a" {
		t.Errorf("重复时段应保留先出现的规则，得到 %s", slots[1].RuleID)
	}
}

func TestGenerateSlots_SortedAcrossDays(t *testing.T) {
	in := baseInput()
	in.RangeEnd = monday.AddDate(0, 0, 8)
	in.Rules = []model.AvailabilityRule{
		recurring("r-late", 1, "15:00", "15:30"),
		recurring("r-early", 1, "08:00", "08:30"),
	}

	slots := GenerateSlots(in)
	if len(slots) != 4 {
		t.Fatalf("期望两个周一各 2 个时段，得到 %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if cur.Date.Before(prev.Date) || (cur.Date.Equal(prev.Date) && cur.StartTime <= prev.StartTime) {
			t.Errorf("排序错误: %s %s 在 %s %s 之后", DateKey(cur.Date), cur.StartTime, DateKey(prev.Date), prev.StartTime)
		}
	}
}

func TestGenerateSlots_Deterministic(t *testing.T) {
	in := baseInput()
	in.RangeEnd = monday.AddDate(0, 0, 14)
	in.Rules = append(in.Rules,
		specific("r-x", monday, model.TimeWindow{StartTime: "09:15", EndTime: "11:00"}),
		recurring("r-wed", 3, "12:00", "13:00"),
	)
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "10:15", "10:45", model.BookingStatusConfirmed),
	}

	first := GenerateSlots(in)
	second := GenerateSlots(in)
	if !reflect.DeepEqual(first, second) {
		t.Error("相同输入应得到相同输出")
	}
}

func TestGenerateSlots_EmptyRange(t *testing.T) {
	in := baseInput()
	in.RangeEnd = in.RangeStart
	if slots := GenerateSlots(in); slots != nil {
		t.Errorf("空区间应返回 nil，得到 %v", slots)
	}
}

// ── 可预约性 ──

func TestGenerateSlots_AdvanceNotice(t *testing.T) {
	in := baseInput()
	// now = 周日 09:10，24h 提前量 → 周一 09:10 之前的时段不可约
	in.Now = time.Date(2026, 10, 18, 9, 10, 0, 0, time.UTC)

	slots := GenerateSlots(in)
	if slots[0].Bookable || slots[0].Reason != ReasonAdvanceNotice {
		t.Errorf("09:00 应因提前量被拦截，得到 %+v", slots[0])
	}
	if !slots[1].Bookable {
		t.Errorf("09:30 应可预约，得到 %+v", slots[1])
	}
}

func TestGenerateSlots_AdvanceNoticeBoundaryInclusive(t *testing.T) {
	in := baseInput()
	in.Now = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	if slots := GenerateSlots(in); !slots[0].Bookable {
		t.Errorf("恰好等于 now+提前量 时应可预约，得到 %+v", slots[0])
	}
}

func TestGenerateSlots_AdvanceNoticeUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("缺少时区数据: %v", err)
	}
	in := baseInput()
	in.Location = ny
	in.EventType.AdvanceNoticeHours = 0
	// 周一 13:15 UTC = 纽约 09:15（夏令时）
	in.Now = time.Date(2026, 10, 19, 13, 15, 0, 0, time.UTC)

	slots := GenerateSlots(in)
	if slots[0].Bookable || !slots[1].Bookable {
		t.Errorf("期望仅 09:30 可约，得到 %+v", slots)
	}
}

func TestGenerateSlots_ExactKeyBooked(t *testing.T) {
	in := baseInput()
	in.EventType.BufferBeforeMinutes, in.EventType.BufferAfterMinutes = 0, 0
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:00", "09:30", model.BookingStatusPending),
	}

	slots := GenerateSlots(in)
	if slots[0].Reason != ReasonBooked {
		t.Errorf("09:00 应标记为 booked，得到 %q", slots[0].Reason)
	}
	if !slots[1].Bookable {
		t.Errorf("无缓冲时 09:30 应可预约，得到 %+v", slots[1])
	}
}

func TestGenerateSlots_IgnoresTerminalBookings(t *testing.T) {
	in := baseInput()
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:00", "09:30", model.BookingStatusCancelled),
		booking("b-2", "et-call", monday, "09:30", "10:00", model.BookingStatusNoShow),
	}

	if got := Available(GenerateSlots(in)); len(got) != 2 {
		t.Errorf("取消/爽约的预约不应占用时段，得到 %v", starts(got))
	}
}

func TestGenerateSlots_DailyCap(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 1
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "12:00")}
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "11:30", "12:00", model.BookingStatusConfirmed),
	}

	slots := GenerateSlots(in)
	for _, s := range slots {
		if s.StartTime == "11:30" {
			continue
		}
		if s.Reason != ReasonDailyCap {
			t.Errorf("%s 应因每日上限被拦截，得到 %q", s.StartTime, s.Reason)
		}
	}
}

func TestGenerateSlots_DailyCapCountsOnlySameEventType(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 1
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "12:00")}
	in.Bookings = []model.Booking{
		booking("b-1", "et-tour", monday, "11:30", "12:00", model.BookingStatusConfirmed),
	}

	slots := GenerateSlots(in)
	if !slots[0].Bookable {
		t.Errorf("其他活动类型不计入上限，09:00 应可预约，得到 %q", slots[0].Reason)
	}
}

func TestGenerateSlots_ZeroCapIsUnlimited(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 0
	in.EventType.BufferBeforeMinutes, in.EventType.BufferAfterMinutes = 0, 0
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "11:00")}
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:00", "09:30", model.BookingStatusConfirmed),
		booking("b-2", "et-call", monday, "09:30", "10:00", model.BookingStatusConfirmed),
		booking("b-3", "et-call", monday, "10:00", "10:30", model.BookingStatusConfirmed),
	}

	slots := GenerateSlots(in)
	if !slots[3].Bookable {
		t.Errorf("上限为 0 表示不限，10:30 应可预约，得到 %q", slots[3].Reason)
	}
}

func TestGenerateSlots_BufferIsCoachWide(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 0
	in.EventType.BufferBeforeMinutes = 10
	in.EventType.BufferAfterMinutes = 15
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "12:00")}
	// 另一活动类型占用 10:00-10:30
	in.Bookings = []model.Booking{
		booking("b-tour", "et-tour", monday, "10:00", "10:30", model.BookingStatusConfirmed),
	}

	got := map[string]BlockReason{}
	for _, s := range GenerateSlots(in) {
		got[s.StartTime] = s.Reason
	}
	// 09:30-10:00 结束于 10:00，距离下一个预约不足 10 分钟
	if got["09:30"] != ReasonBuffer {
		t.Errorf("09:30 应因前置缓冲被拦截，得到 %q", got["09:30"])
	}
	// 10:30 开始，距上一个预约结束不足 15 分钟
	if got["10:30"] != ReasonBuffer {
		t.Errorf("10:30 应因后置缓冲被拦截，得到 %q", got["10:30"])
	}
	if got["09:00"] != ReasonNone || got["11:00"] != ReasonNone {
		t.Errorf("09:00 与 11:00 应可预约，得到 %q / %q", got["09:00"], got["11:00"])
	}
}

func TestGenerateSlots_BufferInvariant(t *testing.T) {
	tests := []struct {
		name          string
		before, after int
		booked        map[string]Buffers
	}{
		{name: "对称缓冲", before: 5, after: 5},
		{name: "仅后置缓冲", before: 0, after: 10},
		{name: "仅前置缓冲", before: 15, after: 0},
		{
			name: "已有预约缓冲更大", before: 0, after: 5,
			booked: map[string]Buffers{"et-tour": {Before: 25, After: 40}},
		},
		{
			name: "双方缓冲交错", before: 20, after: 0,
			booked: map[string]Buffers{"et-tour": {Before: 0, After: 35}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.EventType.MaxBookingsPerDay = 0
			in.EventType.DurationMinutes = 20
			in.EventType.BufferBeforeMinutes = tt.before
			in.EventType.BufferAfterMinutes = tt.after
			in.BookedBuffers = tt.booked
			in.Rules = []model.AvailabilityRule{recurring("r", 1, "08:00", "18:00")}
			in.Bookings = []model.Booking{
				booking("b-1", "et-call", monday, "10:00", "10:20", model.BookingStatusConfirmed),
				booking("b-2", "et-tour", monday, "13:05", "14:35", model.BookingStatusPending),
			}

			own := Buffers{Before: tt.before, After: tt.after}
			buffersOf := func(etID string) Buffers {
				if buf, ok := tt.booked[etID]; ok {
					return buf
				}
				if etID == "et-call" {
					return own
				}
				m := tt.before
				if tt.after > m {
					m = tt.after
				}
				return Buffers{Before: m, After: m}
			}

			for _, s := range Available(GenerateSlots(in)) {
				ss, se, _ := ValidWindow(s.StartTime, s.EndTime)
				for _, b := range in.Bookings {
					bs, be, _ := ValidWindow(b.StartTime, b.EndTime)
					bb := buffersOf(b.EventTypeID)
					// 先后两个区间的间距不小于 max(前者后置, 后者前置)
					var gap, need Clock
					if se <= bs {
						gap, need = bs-se, maxClock(Clock(own.After), Clock(bb.Before))
					} else {
						gap, need = ss-be, maxClock(Clock(bb.After), Clock(own.Before))
					}
					if gap < need {
						t.Errorf("可预约时段 %s-%s 与预约 %s-%s 间距 %d 分钟，要求 %d", s.StartTime, s.EndTime, b.StartTime, b.EndTime, gap, need)
					}
				}
			}
		})
	}
}

func TestGenerateSlots_BufferIndependentOfOrder(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 0
	in.EventType.BufferBeforeMinutes = 0
	in.EventType.BufferAfterMinutes = 10
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "11:00")}

	// 已有预约在候选时段之后：候选时段的后置缓冲不足
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "10:00", "10:30", model.BookingStatusConfirmed),
	}
	got := map[string]BlockReason{}
	for _, s := range GenerateSlots(in) {
		got[s.StartTime] = s.Reason
	}
	if got["09:30"] != ReasonBuffer {
		t.Errorf("09:30 结束后仅余 0 分钟，应因缓冲被拦截，得到 %q", got["09:30"])
	}

	// 已有预约在候选时段之前：已有预约的后置缓冲不足
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:30", "10:00", model.BookingStatusConfirmed),
	}
	got = map[string]BlockReason{}
	for _, s := range GenerateSlots(in) {
		got[s.StartTime] = s.Reason
	}
	if got["10:00"] != ReasonBuffer {
		t.Errorf("10:00 紧接 09:30 预约，应因缓冲被拦截，得到 %q", got["10:00"])
	}
	if got["10:30"] != ReasonNone {
		t.Errorf("10:30 距上一个预约 30 分钟，应可预约，得到 %q", got["10:30"])
	}
}

func TestGenerateSlots_BookedEventTypeBuffers(t *testing.T) {
	in := baseInput()
	in.EventType.MaxBookingsPerDay = 0
	in.EventType.BufferBeforeMinutes = 0
	in.EventType.BufferAfterMinutes = 0
	in.Rules = []model.AvailabilityRule{recurring("r", 1, "09:00", "11:00")}
	in.Bookings = []model.Booking{
		booking("b-tour", "et-tour", monday, "09:00", "09:30", model.BookingStatusConfirmed),
	}
	in.BookedBuffers = BuffersOf([]model.EventType{{EventTypeID: "et-tour", BufferAfterMinutes: 15}})

	got := map[string]BlockReason{}
	for _, s := range GenerateSlots(in) {
		got[s.StartTime] = s.Reason
	}
	if got["09:30"] != ReasonBuffer {
		t.Errorf("参观结束后需留 15 分钟，09:30 应被拦截，得到 %q", got["09:30"])
	}
	if got["10:00"] != ReasonNone {
		t.Errorf("10:00 距参观结束 30 分钟，应可预约，得到 %q", got["10:00"])
	}
}

func TestGenerateSlots_ExcludeBookingID(t *testing.T) {
	in := baseInput()
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:00", "09:30", model.BookingStatusConfirmed),
	}
	in.ExcludeBookingID = "b-1"

	if got := Available(GenerateSlots(in)); len(got) != 2 {
		t.Errorf("排除的预约不应参与判定，得到 %v", starts(got))
	}
}

func TestGenerateSlots_IgnoresOtherCoach(t *testing.T) {
	in := baseInput()
	other := booking("b-x", "et-call", monday, "09:00", "09:30", model.BookingStatusConfirmed)
	other.CoachID = "coach-2"
	in.Bookings = []model.Booking{other}

	if got := Available(GenerateSlots(in)); len(got) != 2 {
		t.Errorf("其他教练的预约不应影响，得到 %v", starts(got))
	}
}

// 预约流程示例：30 分钟通话，缓冲 5/5，上限 2，提前 24h
func TestGenerateSlots_CallScenario(t *testing.T) {
	in := baseInput()

	slots := GenerateSlots(in)
	if len(Available(slots)) != 2 {
		t.Fatalf("期望 2 个候选时段，得到 %v", starts(slots))
	}

	// 09:00 已被预约，另有一个无关预约在当天下午
	in.Bookings = []model.Booking{
		booking("b-1", "et-call", monday, "09:00", "09:30", model.BookingStatusConfirmed),
		booking("b-2", "et-call", monday, "15:00", "15:30", model.BookingStatusConfirmed),
	}
	slots = GenerateSlots(in)

	s, ok := Find(slots, monday, "09:00")
	if !ok || s.Reason != ReasonBooked {
		t.Errorf("09:00 应为 booked，得到 %+v", s)
	}
	s, ok = Find(slots, monday, "09:30")
	if !ok || s.Reason != ReasonDailyCap {
		t.Errorf("09:30 应为 daily_cap，得到 %+v", s)
	}
}

func TestFind_Missing(t *testing.T) {
	slots := GenerateSlots(baseInput())
	if _, ok := Find(slots, monday, "09:15"); ok {
		t.Error("09:15 不在时段网格上，不应找到")
	}
	if _, ok := Find(slots, monday.AddDate(0, 0, 1), "09:00"); ok {
		t.Error("周二无规则，不应找到")
	}
}
