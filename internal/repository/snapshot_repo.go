package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"admitcoach/scheduler/internal/model"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// CalendarSnapshot 同一逻辑时刻读到的活动类型、规则与预约
type CalendarSnapshot struct {
	EventTypes []model.EventType
	Rules      []model.AvailabilityRule
	Bookings   []model.Booking

	// BookedEventTypes 区间内预约所属的活动类型，不受 eventTypeID 过滤
	BookedEventTypes []model.EventType
}

// SnapshotRepository 日历视图的一致性快照读取
type SnapshotRepository interface {
	// Load eventTypeID 为 nil 时读取该教练全部启用中的活动类型
	Load(ctx context.Context, coachID string, eventTypeID *string, from, to time.Time) (*CalendarSnapshot, error)
}

type snapshotRepo struct {
	db *gorm.DB
}

// NewSnapshotRepo 创建 SnapshotRepository 实例
func NewSnapshotRepo(db *gorm.DB) SnapshotRepository {
	return &snapshotRepo{db: db}
}

// Load 只读 REPEATABLE READ 事务：三次读取共享同一快照，不加锁
func (r *snapshotRepo) Load(ctx context.Context, coachID string, eventTypeID *string, from, to time.Time) (*CalendarSnapshot, error) {
	snap := &CalendarSnapshot{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		etQuery := tx.Where("coach_id = ?", coachID)
		if eventTypeID != nil {
			etQuery = etQuery.Where("event_type_id = ?", *eventTypeID)
		} else {
			etQuery = etQuery.Where("is_active = ?", true)
		}
		if err := etQuery.Order("event_type_id ASC").Find(&snap.EventTypes).Error; err != nil {
			return err
		}

		if err := scopeRules(tx, RuleFilter{CoachID: coachID, EventTypeID: eventTypeID}).
			Find(&snap.Rules).Error; err != nil {
			return err
		}

		if err := tx.Where("coach_id = ? AND status IN ? AND booking_date >= ? AND booking_date < ?",
			coachID, model.ActiveBookingStatuses, dateKey(from), dateKey(to)).
			Order("booking_date ASC, start_time ASC").
			Find(&snap.Bookings).Error; err != nil {
			return err
		}

		booked, err := loadBookedEventTypes(tx, snap.Bookings)
		if err != nil {
			return err
		}
		snap.BookedEventTypes = booked
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, pkgerrors.ClassifyStorage(err)
	}
	return snap, nil
}
