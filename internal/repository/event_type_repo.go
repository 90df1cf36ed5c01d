package repository

import (
	"context"

	"gorm.io/gorm"

	"admitcoach/scheduler/internal/model"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// EventTypeRepository 活动类型数据访问接口
type EventTypeRepository interface {
	Create(ctx context.Context, et *model.EventType) error
	GetByID(ctx context.Context, id string) (*model.EventType, error)
	List(ctx context.Context, coachID string, includeInactive bool) ([]model.EventType, error)
	Update(ctx context.Context, et *model.EventType) error
}

type eventTypeRepo struct {
	db *gorm.DB
}

// NewEventTypeRepo 创建 EventTypeRepository 实例
func NewEventTypeRepo(db *gorm.DB) EventTypeRepository {
	return &eventTypeRepo{db: db}
}

func (r *eventTypeRepo) Create(ctx context.Context, et *model.EventType) error {
	return pkgerrors.ClassifyStorage(r.db.WithContext(ctx).Create(et).Error)
}

func (r *eventTypeRepo) GetByID(ctx context.Context, id string) (*model.EventType, error) {
	var et model.EventType
	err := r.db.WithContext(ctx).
		Where("event_type_id = ?", id).
		First(&et).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStorage(err)
	}
	return &et, nil
}

func (r *eventTypeRepo) List(ctx context.Context, coachID string, includeInactive bool) ([]model.EventType, error) {
	var list []model.EventType
	db := r.db.WithContext(ctx)

	if coachID != "" {
		db = db.Where("coach_id = ?", coachID)
	}
	if !includeInactive {
		db = db.Where("is_active = ?", true)
	}

	err := db.Order("coach_id ASC, name ASC, event_type_id ASC").Find(&list).Error
	return list, pkgerrors.ClassifyStorage(err)
}

// Update 基于 version 的乐观锁更新
func (r *eventTypeRepo) Update(ctx context.Context, et *model.EventType) error {
	oldVersion := et.Version
	result := r.db.WithContext(ctx).
		Model(&model.EventType{}).
		Where("event_type_id = ? AND version = ?", et.EventTypeID, oldVersion).
		Updates(map[string]interface{}{
			"name":                  et.Name,
			"kind":                  et.Kind,
			"duration_minutes":      et.DurationMinutes,
			"buffer_before_minutes": et.BufferBeforeMinutes,
			"buffer_after_minutes":  et.BufferAfterMinutes,
			"max_bookings_per_day":  et.MaxBookingsPerDay,
			"advance_notice_hours":  et.AdvanceNoticeHours,
			"requires_confirmation": et.RequiresConfirmation,
			"allow_cancellation":    et.AllowCancellation,
			"allow_reschedule":      et.AllowReschedule,
			"questions":             et.Questions,
			"is_active":             et.IsActive,
			"updated_by":            et.UpdatedBy,
			"updated_at":            gorm.Expr("NOW()"),
			"version":               oldVersion + 1,
		})
	if result.Error != nil {
		return pkgerrors.ClassifyStorage(result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	et.Version = oldVersion + 1
	return nil
}
