package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"admitcoach/scheduler/config"
	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/repository"
	"admitcoach/scheduler/internal/scheduling"
)

// CalendarService 日历视图：时段生成结果与预约台账的只读合并
type CalendarService interface {
	GetCalendar(ctx context.Context, coachID string, req *dto.CalendarRequest) (*dto.CalendarResponse, error)
}

type calendarService struct {
	cfg    *config.SchedulingConfig
	repo   *repository.Repository
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(cfg *config.SchedulingConfig, repo *repository.Repository, logger *zap.Logger) CalendarService {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return &calendarService{cfg: cfg, repo: repo, loc: loc, now: time.Now, logger: logger}
}

// ────────────────────── GetCalendar ──────────────────────

// GetCalendar 规则与预约来自同一快照；每个有效预约输出一条 booked，
// 其余时段按判定结果输出 available / blocked
func (s *calendarService) GetCalendar(ctx context.Context, coachID string, req *dto.CalendarRequest) (*dto.CalendarResponse, error) {
	from, err := scheduling.ParseDate(req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	to, err := scheduling.ParseDate(req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: end 必须晚于 start", ErrValidationFailed)
	}
	if days := int(to.Sub(from).Hours() / 24); days > s.cfg.MaxRangeDays {
		return nil, fmt.Errorf("%w: 查询跨度不能超过 %d 天", ErrValidationFailed, s.cfg.MaxRangeDays)
	}

	snap, err := s.repo.Snapshot.Load(ctx, coachID, req.EventTypeID, from, to)
	if err != nil {
		s.logger.Error("读取日历快照失败", zap.String("coach_id", coachID), zap.Error(err))
		return nil, err
	}
	if req.EventTypeID != nil && len(snap.EventTypes) == 0 {
		return nil, ErrEventTypeNotFound
	}

	now := s.now()
	buffers := scheduling.BuffersOf(snap.BookedEventTypes)
	entries := make([]dto.CalendarEntry, 0)
	for i := range snap.EventTypes {
		et := &snap.EventTypes[i]
		if !et.IsActive {
			continue
		}
		slots := scheduling.GenerateSlots(scheduling.Input{
			CoachID:       coachID,
			EventType:     et,
			Rules:         snap.Rules,
			Bookings:      snap.Bookings,
			BookedBuffers: buffers,
			RangeStart:    from,
			RangeEnd:      to,
			Now:           now,
			Location:      s.loc,
		})
		for _, slot := range slots {
			// 被占用的时段由下方的预约条目表示
			if slot.Reason == scheduling.ReasonBooked {
				continue
			}
			entry := dto.CalendarEntry{
				Date:        scheduling.DateKey(slot.Date),
				StartTime:   slot.StartTime,
				EndTime:     slot.EndTime,
				EventTypeID: slot.EventTypeID,
				Status:      dto.CalendarAvailable,
			}
			if !slot.Bookable {
				entry.Status = dto.CalendarBlocked
				entry.Reason = string(slot.Reason)
			}
			entries = append(entries, entry)
		}
	}

	for _, b := range snap.Bookings {
		if req.EventTypeID != nil && b.EventTypeID != *req.EventTypeID {
			continue
		}
		entries = append(entries, dto.CalendarEntry{
			Date:          scheduling.DateKey(b.BookingDate),
			StartTime:     b.StartTime,
			EndTime:       b.EndTime,
			EventTypeID:   b.EventTypeID,
			Status:        dto.CalendarBooked,
			BookingID:     b.BookingID,
			BookingStatus: b.Status,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.EventTypeID != b.EventTypeID {
			return a.EventTypeID < b.EventTypeID
		}
		return a.Status < b.Status
	})

	return &dto.CalendarResponse{
		CoachID:  coachID,
		Start:    req.Start,
		End:      req.End,
		Timezone: s.loc.String(),
		Entries:  entries,
	}, nil
}
