package scheduling

import (
	"fmt"
	"time"
)

// DateLayout 民用日期格式
const DateLayout = "2006-01-02"

// MinutesPerDay 一天的分钟数（24:00 允许作为窗口结束时间）
const MinutesPerDay = 24 * 60

// Clock 距当日零点的分钟数（教练所在地民用时间）
type Clock int

// ParseClock 解析 "HH:MM"，允许 "24:00" 表示当日结束
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	return Clock(h*60 + m), nil
}

// String 格式化为 "HH:MM"
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ValidWindow 校验窗口 start < end，返回解析后的分钟数
func ValidWindow(start, end string) (Clock, Clock, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	if s >= e {
		return 0, 0, fmt.Errorf("开始时间 %s 必须早于结束时间 %s", start, end)
	}
	return s, e, nil
}

// ── 民用日期 ──
// 日期统一表示为 UTC 零点的 time.Time，只取年月日

// DateOf 取 t 在其自身时区下的年月日
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 "YYYY-MM-DD"
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效: %q", s)
	}
	return t, nil
}

// DateKey 日期的字符串键
func DateKey(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// Instant 将民用日期 + 分钟数放到指定时区，得到绝对时刻
func Instant(date time.Time, c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// Today 当前时刻在指定时区下的民用日期与分钟数
func Today(now time.Time, loc *time.Location) (time.Time, Clock) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return DateOf(local), Clock(local.Hour()*60 + local.Minute())
}
