package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"admitcoach/scheduler/config"
	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/model"
	"admitcoach/scheduler/internal/repository"
	"admitcoach/scheduler/internal/scheduling"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// ── 预约模块业务错误 ──

var (
	ErrBookingNotFound       = errors.New("预约不存在")
	ErrSlotNoLongerAvailable = errors.New("该时段已不可预约，请刷新日历后重试")
	ErrAdvanceNoticeViolated = errors.New("未满足最短提前预约时间")
	ErrDailyCapReached       = errors.New("该活动类型当日预约已满")
	ErrEventTypeInactive     = errors.New("活动类型已停用")
	ErrInvalidTransition     = errors.New("当前预约状态不允许该操作")
)

// 事件路由键
const (
	routingKeyPrefix   = "booking."
	RoutingReminderDue = "booking.reminder_due"
)

var tracer = otel.Tracer("admitcoach/scheduler/internal/service")

// BookingService 预约台账业务接口（bookings 的唯一写入方）
type BookingService interface {
	Reserve(ctx context.Context, req *dto.ReserveRequest, idempotencyKey string, caller Caller) (*dto.BookingResponse, error)
	GetByID(ctx context.Context, id string, caller Caller) (*dto.BookingResponse, error)
	List(ctx context.Context, req *dto.BookingListRequest, caller Caller) ([]dto.BookingResponse, int64, error)
	Confirm(ctx context.Context, id string, caller Caller) (*dto.BookingResponse, error)
	Cancel(ctx context.Context, id, reason string, caller Caller) (*dto.BookingResponse, error)
	Reschedule(ctx context.Context, id string, req *dto.RescheduleRequest, caller Caller) (*dto.BookingResponse, error)
	MarkNoShow(ctx context.Context, id string, caller Caller) (*dto.BookingResponse, error)
	MarkNotified(ctx context.Context, id string, req *dto.MarkNotifiedRequest) (*dto.BookingResponse, error)

	// CompleteElapsed confirmed → completed 后台清扫，返回处理条数
	CompleteElapsed(ctx context.Context) (int, error)
	// SendDueReminders 发布即将开始预约的提醒事件，返回发布条数
	SendDueReminders(ctx context.Context) (int, error)
}

type bookingService struct {
	cfg       *config.SchedulingConfig
	repo      *repository.Repository
	catalog   EventTypeCatalog
	publisher EventPublisher
	idem      IdempotencyStore
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewBookingService 创建 BookingService 实例；publisher / idem 为 nil 时跳过对应功能
func NewBookingService(
	cfg *config.SchedulingConfig,
	repo *repository.Repository,
	catalog EventTypeCatalog,
	publisher EventPublisher,
	idem IdempotencyStore,
	logger *zap.Logger,
) BookingService {
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("排期时区无效，回退到 UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}
	return &bookingService{
		cfg:       cfg,
		repo:      repo,
		catalog:   catalog,
		publisher: publisher,
		idem:      idem,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

// ════════════════════════════════════════════════════════════
// Reserve 原子预约
// ════════════════════════════════════════════════════════════

func (s *bookingService) Reserve(ctx context.Context, req *dto.ReserveRequest, idempotencyKey string, caller Caller) (_ *dto.BookingResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.Reserve", trace.WithAttributes(
		attribute.String("coach_id", req.CoachID),
		attribute.String("event_type_id", req.EventTypeID),
		attribute.String("date", req.Date),
		attribute.String("start_time", req.StartTime),
	))
	defer func() { endSpan(span, err) }()

	// 1. 输入校验
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	date, start, err := parseSlotKey(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}

	// 2. 幂等重放
	key := ""
	if idempotencyKey != "" && s.idem != nil {
		key = "reserve:" + caller.UserID + ":" + idempotencyKey
		if existing := s.replay(ctx, key); existing != nil {
			span.SetAttributes(attribute.Bool("idempotent_replay", true))
			return existing, nil
		}
	}

	// 3. 活动类型与自定义问题（提交时会在事务内再次读取活动类型）
	et, err := s.catalog.Lookup(ctx, req.EventTypeID)
	if err != nil {
		return nil, err
	}
	if et.CoachID != req.CoachID {
		return nil, fmt.Errorf("%w: 活动类型不属于该教练", ErrValidationFailed)
	}
	if !et.IsActive {
		return nil, ErrEventTypeInactive
	}
	answers, err := validateAnswers(et.Questions, req.Answers)
	if err != nil {
		return nil, err
	}

	// 4. 事务内重新判定 + 条件插入
	now := s.now().UTC()
	b := &model.Booking{
		BookingID:      uuid.NewString(),
		CoachID:        req.CoachID,
		EventTypeID:    req.EventTypeID,
		BookingDate:    date,
		StartTime:      start.String(),
		RequesterID:    &caller.UserID,
		RequesterName:  req.Requester.Name,
		RequesterEmail: req.Requester.Email,
		RequesterPhone: req.Requester.Phone,
		Answers:        answers,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Booking.Reserve(ctx, b, s.reserveCheck(b, start, "")); err != nil {
		err = s.mapReserveError(err)
		if key != "" && errors.Is(err, ErrSlotNoLongerAvailable) {
			// 并发的重试请求可能刚刚以同一幂等键成功
			if existing := s.replay(ctx, key); existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if key != "" {
		if err := s.idem.Remember(ctx, key, b.BookingID, s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("记录幂等键失败", zap.String("booking_id", b.BookingID), zap.Error(err))
		}
	}
	_ = s.publish(ctx, routingKeyPrefix+b.Status, b, "")

	s.logger.Info("预约成功",
		zap.String("booking_id", b.BookingID),
		zap.String("coach_id", b.CoachID),
		zap.String("date", req.Date),
		zap.String("start_time", b.StartTime),
		zap.String("status", b.Status),
	)
	return toBookingResponse(b), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *bookingService) GetByID(ctx context.Context, id string, caller Caller) (*dto.BookingResponse, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(caller, b) {
		return nil, ErrForbidden
	}
	return toBookingResponse(b), nil
}

// ────────────────────── List ──────────────────────

// List 家庭只能看到自己的预约，教练只能看到自己名下的预约
func (s *bookingService) List(ctx context.Context, req *dto.BookingListRequest, caller Caller) ([]dto.BookingResponse, int64, error) {
	filter := repository.BookingFilter{
		CoachID:  req.CoachID,
		Status:   req.Status,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
	}
	switch caller.Role {
	case RoleAdmin:
	case RoleCoach:
		filter.CoachID = caller.UserID
	default:
		filter.RequesterID = caller.UserID
	}
	if req.Start != "" {
		d, err := scheduling.ParseDate(req.Start)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		filter.From = &d
	}
	if req.End != "" {
		d, err := scheduling.ParseDate(req.End)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		filter.To = &d
	}

	list, total, err := s.repo.Booking.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出预约失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.BookingResponse, 0, len(list))
	for i := range list {
		result = append(result, *toBookingResponse(&list[i]))
	}
	return result, total, nil
}

// ────────────────────── Confirm ──────────────────────

// Confirm pending → confirmed（教练操作）
func (s *bookingService) Confirm(ctx context.Context, id string, caller Caller) (_ *dto.BookingResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.Confirm", trace.WithAttributes(attribute.String("booking_id", id)))
	defer func() { endSpan(span, err) }()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.canManageCoach(b.CoachID) {
		return nil, ErrForbidden
	}
	if b.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("%w: %s 不能确认", ErrInvalidTransition, b.Status)
	}

	now := s.now().UTC()
	updated, err := s.transition(ctx, id, []string{model.BookingStatusPending}, map[string]interface{}{
		"status":       model.BookingStatusConfirmed,
		"confirmed_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, err
	}
	_ = s.publish(ctx, routingKeyPrefix+updated.Status, updated, "")
	return toBookingResponse(updated), nil
}

// ────────────────────── Cancel ──────────────────────

// Cancel {pending, confirmed} → cancelled；状态变更后时段立即可被重新预约
func (s *bookingService) Cancel(ctx context.Context, id, reason string, caller Caller) (_ *dto.BookingResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(attribute.String("booking_id", id)))
	defer func() { endSpan(span, err) }()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(caller, b) {
		return nil, ErrForbidden
	}
	if !b.IsActive() {
		return nil, fmt.Errorf("%w: %s 不能取消", ErrInvalidTransition, b.Status)
	}
	et, err := s.catalog.Fresh(ctx, b.EventTypeID)
	if err != nil {
		return nil, err
	}
	if !et.AllowCancellation {
		return nil, fmt.Errorf("%w: 该活动类型不允许取消", ErrInvalidTransition)
	}

	now := s.now().UTC()
	updated, err := s.transition(ctx, id, model.ActiveBookingStatuses, map[string]interface{}{
		"status":        model.BookingStatusCancelled,
		"cancel_reason": reason,
		"cancelled_at":  now,
		"updated_at":    now,
	})
	if err != nil {
		return nil, err
	}
	_ = s.publish(ctx, routingKeyPrefix+updated.Status, updated, "")
	return toBookingResponse(updated), nil
}

// ════════════════════════════════════════════════════════════
// Reschedule 取消原预约并占用新时段，二者同一事务
// ════════════════════════════════════════════════════════════

func (s *bookingService) Reschedule(ctx context.Context, id string, req *dto.RescheduleRequest, caller Caller) (_ *dto.BookingResponse, err error) {
	ctx, span := tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(
		attribute.String("booking_id", id),
		attribute.String("date", req.Date),
		attribute.String("start_time", req.StartTime),
	))
	defer func() { endSpan(span, err) }()

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	date, start, err := parseSlotKey(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}

	old, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessBooking(caller, old) {
		return nil, ErrForbidden
	}
	if !old.IsActive() {
		return nil, fmt.Errorf("%w: %s 不能改期", ErrInvalidTransition, old.Status)
	}
	if scheduling.DateOf(old.BookingDate).Equal(date) && old.StartTime == start.String() {
		return nil, fmt.Errorf("%w: 新时段与原时段相同", ErrValidationFailed)
	}
	et, err := s.catalog.Fresh(ctx, old.EventTypeID)
	if err != nil {
		return nil, err
	}
	if !et.AllowReschedule {
		return nil, fmt.Errorf("%w: 该活动类型不允许改期", ErrInvalidTransition)
	}

	now := s.now().UTC()
	oldID := old.BookingID
	next := &model.Booking{
		BookingID:       uuid.NewString(),
		CoachID:         old.CoachID,
		EventTypeID:     old.EventTypeID,
		BookingDate:     date,
		StartTime:       start.String(),
		RequesterID:     old.RequesterID,
		RequesterName:   old.RequesterName,
		RequesterEmail:  old.RequesterEmail,
		RequesterPhone:  old.RequesterPhone,
		Answers:         old.Answers,
		RescheduledFrom: &oldID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Booking.Reschedule(ctx, oldID, next, s.reserveCheck(next, start, oldID), now); err != nil {
		if errors.Is(err, pkgerrors.ErrStateChanged) {
			return nil, fmt.Errorf("%w: 原预约状态已变更", ErrInvalidTransition)
		}
		return nil, s.mapReserveError(err)
	}

	old.Status = model.BookingStatusCancelled
	old.CancelReason = "rescheduled"
	old.CancelledAt = &now
	_ = s.publish(ctx, routingKeyPrefix+model.BookingStatusCancelled, old, "")
	_ = s.publish(ctx, routingKeyPrefix+next.Status, next, oldID)

	s.logger.Info("预约已改期",
		zap.String("from_booking_id", oldID),
		zap.String("to_booking_id", next.BookingID),
	)
	return toBookingResponse(next), nil
}

// ────────────────────── MarkNoShow ──────────────────────

// MarkNoShow confirmed → no_show（教练操作，且时段已结束）
func (s *bookingService) MarkNoShow(ctx context.Context, id string, caller Caller) (*dto.BookingResponse, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.canManageCoach(b.CoachID) {
		return nil, ErrForbidden
	}
	if b.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: %s 不能标记爽约", ErrInvalidTransition, b.Status)
	}
	end, err := scheduling.ParseClock(b.EndTime)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if scheduling.Instant(b.BookingDate, end, s.loc).After(now) {
		return nil, fmt.Errorf("%w: 时段尚未结束", ErrInvalidTransition)
	}

	updated, err := s.transition(ctx, id, []string{model.BookingStatusConfirmed}, map[string]interface{}{
		"status":     model.BookingStatusNoShow,
		"updated_at": now.UTC(),
	})
	if err != nil {
		return nil, err
	}
	_ = s.publish(ctx, routingKeyPrefix+updated.Status, updated, "")
	return toBookingResponse(updated), nil
}

// ────────────────────── MarkNotified ──────────────────────

func (s *bookingService) MarkNotified(ctx context.Context, id string, req *dto.MarkNotifiedRequest) (*dto.BookingResponse, error) {
	if req.ConfirmationSent == nil && req.ReminderSent == nil {
		return nil, fmt.Errorf("%w: 至少提供一个标记", ErrValidationFailed)
	}
	b, err := s.repo.Booking.MarkNotified(ctx, id, req.ConfirmationSent, req.ReminderSent)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		s.logger.Error("更新通知标记失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return toBookingResponse(b), nil
}

// ════════════════════════════════════════════════════════════
// 后台清扫
// ════════════════════════════════════════════════════════════

func (s *bookingService) CompleteElapsed(ctx context.Context) (int, error) {
	now := s.now()
	today, clock := scheduling.Today(now, s.loc)

	done, err := s.repo.Booking.CompleteElapsed(ctx, today, clock.String(), now.UTC())
	if err != nil {
		s.logger.Error("完成状态清扫失败", zap.Error(err))
		return 0, err
	}
	for i := range done {
		_ = s.publish(ctx, routingKeyPrefix+model.BookingStatusCompleted, &done[i], "")
	}
	return len(done), nil
}

func (s *bookingService) SendDueReminders(ctx context.Context) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}
	local := s.now().In(s.loc)
	due, err := s.repo.Booking.DueReminders(ctx, local, local.Add(s.cfg.ReminderLead))
	if err != nil {
		s.logger.Error("查询待提醒预约失败", zap.Error(err))
		return 0, err
	}

	sent := 0
	for i := range due {
		b := &due[i]
		claimed, err := s.repo.Booking.MarkReminderSent(ctx, b.BookingID)
		if err != nil {
			s.logger.Warn("标记提醒失败", zap.String("booking_id", b.BookingID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		if err := s.publish(ctx, RoutingReminderDue, b, ""); err != nil {
			// 发布失败时回退标记，下一轮清扫重试
			reset := false
			if _, err := s.repo.Booking.MarkNotified(ctx, b.BookingID, nil, &reset); err != nil {
				s.logger.Warn("回退提醒标记失败", zap.String("booking_id", b.BookingID), zap.Error(err))
			}
			continue
		}
		sent++
	}
	return sent, nil
}

// ── 内部辅助方法 ──

// reserveCheck 在提交事务内按当前规则与预约重新生成该日时段并判定目标时段
func (s *bookingService) reserveCheck(b *model.Booking, start scheduling.Clock, excludeID string) repository.ReserveCheck {
	return func(state *repository.ReserveState) error {
		et := state.EventType
		if et.CoachID != b.CoachID {
			return fmt.Errorf("%w: 活动类型不属于该教练", ErrValidationFailed)
		}
		if !et.IsActive {
			return ErrEventTypeInactive
		}

		now := s.now()
		earliest := now.Add(time.Duration(et.AdvanceNoticeHours) * time.Hour)
		if scheduling.Instant(b.BookingDate, start, s.loc).Before(earliest) {
			return ErrAdvanceNoticeViolated
		}

		slots := scheduling.GenerateSlots(scheduling.Input{
			CoachID:          b.CoachID,
			EventType:        et,
			Rules:            state.Rules,
			Bookings:         state.Bookings,
			BookedBuffers:    scheduling.BuffersOf(state.BookedEventTypes),
			RangeStart:       b.BookingDate,
			RangeEnd:         b.BookingDate.AddDate(0, 0, 1),
			Now:              now,
			Location:         s.loc,
			ExcludeBookingID: excludeID,
		})
		slot, ok := scheduling.Find(slots, b.BookingDate, b.StartTime)
		if !ok {
			return ErrSlotNoLongerAvailable
		}
		switch slot.Reason {
		case scheduling.ReasonNone:
		case scheduling.ReasonAdvanceNotice:
			return ErrAdvanceNoticeViolated
		case scheduling.ReasonDailyCap:
			return ErrDailyCapReached
		default:
			return ErrSlotNoLongerAvailable
		}

		ruleID := slot.RuleID
		b.RuleID = &ruleID
		b.EndTime = slot.EndTime
		b.Status = model.BookingStatusConfirmed
		b.ConfirmedAt = nil
		if et.RequiresConfirmation {
			b.Status = model.BookingStatusPending
		} else {
			at := now.UTC()
			b.ConfirmedAt = &at
		}
		return nil
	}
}

func (s *bookingService) mapReserveError(err error) error {
	switch {
	case errors.Is(err, pkgerrors.ErrSlotTaken):
		return ErrSlotNoLongerAvailable
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrEventTypeNotFound
	case errors.Is(err, pkgerrors.ErrStorageUnavailable):
		s.logger.Error("预约写入时存储不可用", zap.Error(err))
	}
	return err
}

// replay 按幂等键取回已创建的预约；任何失败都视为未命中
func (s *bookingService) replay(ctx context.Context, key string) *dto.BookingResponse {
	id, ok, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn("读取幂等键失败", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	b, err := s.repo.Booking.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("幂等键指向的预约不可读", zap.String("booking_id", id), zap.Error(err))
		return nil
	}
	return toBookingResponse(b)
}

func (s *bookingService) load(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.repo.Booking.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		s.logger.Error("查询预约失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return b, nil
}

// transition 条件状态流转；并发下状态已变化时返回 ErrInvalidTransition
func (s *bookingService) transition(ctx context.Context, id string, from []string, updates map[string]interface{}) (*model.Booking, error) {
	b, err := s.repo.Booking.UpdateStatus(ctx, id, from, updates)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrStateChanged) {
			return nil, fmt.Errorf("%w: 预约状态已变更", ErrInvalidTransition)
		}
		s.logger.Error("更新预约状态失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return b, nil
}

// publish 发布失败只记录日志，投递由消息协作方负责
func (s *bookingService) publish(ctx context.Context, routingKey string, b *model.Booking, previousID string) error {
	if s.publisher == nil {
		return nil
	}
	evt := dto.BookingEvent{
		Type:           routingKey,
		BookingID:      b.BookingID,
		CoachID:        b.CoachID,
		EventTypeID:    b.EventTypeID,
		Date:           scheduling.DateKey(b.BookingDate),
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         b.Status,
		RequesterName:  b.RequesterName,
		RequesterEmail: b.RequesterEmail,
		PreviousID:     previousID,
		OccurredAt:     s.now().UTC().Format(dto.TimeFormat),
	}
	if err := s.publisher.Publish(ctx, routingKey, evt); err != nil {
		s.logger.Warn("发布预约事件失败",
			zap.String("routing_key", routingKey),
			zap.String("booking_id", b.BookingID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func parseSlotKey(date, startTime string) (time.Time, scheduling.Clock, error) {
	d, err := scheduling.ParseDate(date)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	start, err := scheduling.ParseClock(startTime)
	if err != nil || start >= scheduling.MinutesPerDay {
		return time.Time{}, 0, fmt.Errorf("%w: 开始时间无效: %q", ErrValidationFailed, startTime)
	}
	return d, start, nil
}

// validateAnswers 校验自定义问题回答，按问题定义顺序输出
func validateAnswers(questions []model.CustomQuestion, answers []dto.AnswerDTO) (datatypes.JSONSlice[model.Answer], error) {
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.QuestionID] = true
	}
	byID := make(map[string]dto.AnswerDTO, len(answers))
	for _, a := range answers {
		if !known[a.QuestionID] {
			return nil, fmt.Errorf("%w: 未知问题 %s", ErrValidationFailed, a.QuestionID)
		}
		if _, dup := byID[a.QuestionID]; dup {
			return nil, fmt.Errorf("%w: 问题 %s 重复作答", ErrValidationFailed, a.QuestionID)
		}
		byID[a.QuestionID] = a
	}

	out := make([]model.Answer, 0, len(answers))
	for _, q := range questions {
		a, ok := byID[q.QuestionID]

		values := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			if q.Required {
				return nil, fmt.Errorf("%w: 必答问题 %s 未作答", ErrValidationFailed, q.QuestionID)
			}
			if !ok {
				continue
			}
		}

		switch q.Type {
		case model.QuestionTypeText, model.QuestionTypeSingleSelect:
			if len(values) > 1 {
				return nil, fmt.Errorf("%w: 问题 %s 只能有一个回答", ErrValidationFailed, q.QuestionID)
			}
		}
		if q.Type != model.QuestionTypeText {
			allowed := make(map[string]bool, len(q.Options))
			for _, o := range q.Options {
				allowed[o] = true
			}
			picked := make(map[string]bool, len(values))
			for _, v := range values {
				if !allowed[v] || picked[v] {
					return nil, fmt.Errorf("%w: 问题 %s 的选项无效: %s", ErrValidationFailed, q.QuestionID, v)
				}
				picked[v] = true
			}
		}
		out = append(out, model.Answer{QuestionID: q.QuestionID, Values: values})
	}
	return out, nil
}

func canAccessBooking(c Caller, b *model.Booking) bool {
	if c.IsAdmin() {
		return true
	}
	if b.RequesterID != nil && *b.RequesterID == c.UserID {
		return true
	}
	return c.Role == RoleCoach && b.CoachID == c.UserID
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(dto.TimeFormat)
	return &v
}

func toBookingResponse(b *model.Booking) *dto.BookingResponse {
	answers := make([]dto.AnswerDTO, 0, len(b.Answers))
	for _, a := range b.Answers {
		answers = append(answers, dto.AnswerDTO{QuestionID: a.QuestionID, Values: a.Values})
	}
	return &dto.BookingResponse{
		ID:          b.BookingID,
		CoachID:     b.CoachID,
		EventTypeID: b.EventTypeID,
		RuleID:      b.RuleID,
		Date:        scheduling.DateKey(b.BookingDate),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Status:      b.Status,
		RequesterID: b.RequesterID,
		Requester: dto.RequesterDTO{
			Name:  b.RequesterName,
			Email: b.RequesterEmail,
			Phone: b.RequesterPhone,
		},
		Answers:          answers,
		CancelReason:     b.CancelReason,
		RescheduledFrom:  b.RescheduledFrom,
		ConfirmedAt:      formatTimePtr(b.ConfirmedAt),
		CancelledAt:      formatTimePtr(b.CancelledAt),
		CompletedAt:      formatTimePtr(b.CompletedAt),
		ConfirmationSent: b.ConfirmationSent,
		ReminderSent:     b.ReminderSent,
		CreatedAt:        b.CreatedAt.UTC().Format(dto.TimeFormat),
		UpdatedAt:        b.UpdatedAt.UTC().Format(dto.TimeFormat),
	}
}
