package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"admitcoach/scheduler/internal/model"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

const dateLayout = "2006-01-02"

// dateKey 日期列参数统一以 "YYYY-MM-DD" 传入，避免时区换算
func dateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ReserveState Reserve 提交事务内读到的当前状态
type ReserveState struct {
	EventType *model.EventType
	Rules     []model.AvailabilityRule // 该教练全部启用中的规则
	Bookings  []model.Booking          // 该教练当日全部 pending/confirmed 预约

	// BookedEventTypes 当日预约所属的活动类型（用于双向缓冲判定）
	BookedEventTypes []model.EventType
}

// ReserveCheck 在提交事务内重新执行可预约性判定，返回非 nil 即放弃写入
type ReserveCheck func(state *ReserveState) error

// BookingFilter 预约列表过滤条件
type BookingFilter struct {
	CoachID     string
	RequesterID string
	Status      string
	From        *time.Time // 含
	To          *time.Time // 不含
	Page        int
	PageSize    int
}

// BookingRepository 预约台账数据访问接口（台账是 bookings 表唯一的写入方）
type BookingRepository interface {
	Reserve(ctx context.Context, b *model.Booking, check ReserveCheck) error
	Reschedule(ctx context.Context, oldID string, next *model.Booking, check ReserveCheck, cancelledAt time.Time) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]model.Booking, int64, error)
	UpdateStatus(ctx context.Context, id string, from []string, updates map[string]interface{}) (*model.Booking, error)
	CompleteElapsed(ctx context.Context, today time.Time, nowClock string, at time.Time) ([]model.Booking, error)
	DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)
	MarkNotified(ctx context.Context, id string, confirmationSent, reminderSent *bool) (*model.Booking, error)
	CountActiveByRule(ctx context.Context, ruleID string, today time.Time) (int64, error)
}

type bookingRepo struct {
	db *gorm.DB
}

// NewBookingRepo 创建 BookingRepository 实例
func NewBookingRepo(db *gorm.DB) BookingRepository {
	return &bookingRepo{db: db}
}

// ────────────────────── Reserve ──────────────────────

// Reserve 串行化事务内：读取当前状态 → 重新判定 → 条件插入
// 同一 (coach_id, booking_date, start_time) 的有效预约由部分唯一索引保证至多一条，
// 插入未生效、唯一冲突、串行化失败均归类为 ErrSlotTaken
func (r *bookingRepo) Reserve(ctx context.Context, b *model.Booking, check ReserveCheck) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := loadReserveState(tx, b.CoachID, b.EventTypeID, b.BookingDate)
		if err != nil {
			return err
		}
		if err := check(state); err != nil {
			return err
		}
		return insertIfAbsent(tx, b)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return pkgerrors.ClassifyReservation(err)
}

// ────────────────────── Reschedule ──────────────────────

// Reschedule 同一事务内取消原预约并预约新时段；任一步失败整体回滚，原预约保持不变
func (r *bookingRepo) Reschedule(ctx context.Context, oldID string, next *model.Booking, check ReserveCheck, cancelledAt time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Booking{}).
			Where("booking_id = ? AND status IN ?", oldID, model.ActiveBookingStatuses).
			Updates(map[string]interface{}{
				"status":        model.BookingStatusCancelled,
				"cancel_reason": "rescheduled",
				"cancelled_at":  cancelledAt,
				"updated_at":    cancelledAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkgerrors.ErrStateChanged
		}

		state, err := loadReserveState(tx, next.CoachID, next.EventTypeID, next.BookingDate)
		if err != nil {
			return err
		}
		if err := check(state); err != nil {
			return err
		}
		return insertIfAbsent(tx, next)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return pkgerrors.ClassifyReservation(err)
}

// ────────────────────── Query ──────────────────────

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStorage(err)
	}
	return &b, nil
}

func (r *bookingRepo) List(ctx context.Context, filter BookingFilter) ([]model.Booking, int64, error) {
	var list []model.Booking
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Booking{})
	if filter.CoachID != "" {
		db = db.Where("coach_id = ?", filter.CoachID)
	}
	if filter.RequesterID != "" {
		db = db.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		db = db.Where("booking_date >= ?", dateKey(*filter.From))
	}
	if filter.To != nil {
		db = db.Where("booking_date < ?", dateKey(*filter.To))
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.ClassifyStorage(err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	err := db.Order("booking_date ASC, start_time ASC, booking_id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, pkgerrors.ClassifyStorage(err)
}

// ────────────────────── Transition ──────────────────────

// UpdateStatus 条件状态流转：仅当当前状态属于 from 时更新，否则返回 ErrStateChanged
func (r *bookingRepo) UpdateStatus(ctx context.Context, id string, from []string, updates map[string]interface{}) (*model.Booking, error) {
	var b model.Booking
	res := r.db.WithContext(ctx).
		Model(&b).
		Clauses(clause.Returning{}).
		Where("booking_id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, pkgerrors.ClassifyStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.ErrStateChanged
	}
	return &b, nil
}

// CompleteElapsed confirmed → completed：结束时间已过的预约；幂等，可与自身并发执行
func (r *bookingRepo) CompleteElapsed(ctx context.Context, today time.Time, nowClock string, at time.Time) ([]model.Booking, error) {
	var done []model.Booking
	d := dateKey(today)
	err := r.db.WithContext(ctx).
		Model(&done).
		Clauses(clause.Returning{}).
		Where("status = ? AND (booking_date < ? OR (booking_date = ? AND end_time < ?))",
			model.BookingStatusConfirmed, d, d, nowClock).
		Updates(map[string]interface{}{
			"status":       model.BookingStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}).Error
	return done, pkgerrors.ClassifyStorage(err)
}

// DueReminders 开始时间落在 [from, to] 内、尚未提醒的 confirmed 预约
// from/to 为教练所在地的民用时间（只取年月日时分）
func (r *bookingRepo) DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var list []model.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ?", model.BookingStatusConfirmed, false).
		Where("(booking_date + start_time::time) BETWEEN ?::timestamp AND ?::timestamp",
			from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04")).
		Order("booking_date ASC, start_time ASC").
		Find(&list).Error
	return list, pkgerrors.ClassifyStorage(err)
}

// MarkReminderSent 仅当尚未提醒时置位，返回是否由本次调用置位
func (r *bookingRepo) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("booking_id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]interface{}{
			"reminder_sent": true,
			"updated_at":    gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return false, pkgerrors.ClassifyStorage(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *bookingRepo) MarkNotified(ctx context.Context, id string, confirmationSent, reminderSent *bool) (*model.Booking, error) {
	updates := map[string]interface{}{"updated_at": gorm.Expr("NOW()")}
	if confirmationSent != nil {
		updates["confirmation_sent"] = *confirmationSent
	}
	if reminderSent != nil {
		updates["reminder_sent"] = *reminderSent
	}

	var b model.Booking
	res := r.db.WithContext(ctx).
		Model(&b).
		Clauses(clause.Returning{}).
		Where("booking_id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, pkgerrors.ClassifyStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &b, nil
}

// CountActiveByRule 由指定规则生成、日期不早于 today 的 pending/confirmed 预约数
func (r *bookingRepo) CountActiveByRule(ctx context.Context, ruleID string, today time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("rule_id = ? AND status IN ? AND booking_date >= ?", ruleID, model.ActiveBookingStatuses, dateKey(today)).
		Count(&n).Error
	return n, pkgerrors.ClassifyStorage(err)
}

// ── 内部辅助方法 ──

func loadReserveState(tx *gorm.DB, coachID, eventTypeID string, date time.Time) (*ReserveState, error) {
	var et model.EventType
	if err := tx.Where("event_type_id = ?", eventTypeID).First(&et).Error; err != nil {
		return nil, err
	}

	var rules []model.AvailabilityRule
	if err := scopeRules(tx, RuleFilter{CoachID: coachID, EventTypeID: &eventTypeID}).
		Find(&rules).Error; err != nil {
		return nil, err
	}

	var bookings []model.Booking
	if err := tx.Where("coach_id = ? AND booking_date = ? AND status IN ?",
		coachID, dateKey(date), model.ActiveBookingStatuses).
		Order("start_time ASC").
		Find(&bookings).Error; err != nil {
		return nil, err
	}

	booked, err := loadBookedEventTypes(tx, bookings)
	if err != nil {
		return nil, err
	}

	return &ReserveState{EventType: &et, Rules: rules, Bookings: bookings, BookedEventTypes: booked}, nil
}

// loadBookedEventTypes 读取预约引用的活动类型（含已停用的），已有预约的缓冲仍然生效
func loadBookedEventTypes(tx *gorm.DB, bookings []model.Booking) ([]model.EventType, error) {
	seen := make(map[string]bool, len(bookings))
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if !seen[b.EventTypeID] {
			seen[b.EventTypeID] = true
			ids = append(ids, b.EventTypeID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var ets []model.EventType
	if err := tx.Where("event_type_id IN ?", ids).Find(&ets).Error; err != nil {
		return nil, err
	}
	return ets, nil
}

// insertIfAbsent INSERT ... ON CONFLICT DO NOTHING，未插入即视为时段已被占用
func insertIfAbsent(tx *gorm.DB, b *model.Booking) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(b)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrSlotTaken
	}
	return nil
}
