package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"admitcoach/scheduler/internal/model"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// AvailabilityRuleRepository 可预约规则数据访问接口
type AvailabilityRuleRepository interface {
	Create(ctx context.Context, rule *model.AvailabilityRule) error
	GetByID(ctx context.Context, id string) (*model.AvailabilityRule, error)
	List(ctx context.Context, filter RuleFilter) ([]model.AvailabilityRule, error)
	Update(ctx context.Context, rule *model.AvailabilityRule) error
	// DeleteUnreferenced 在同一事务内检查依赖并物理删除
	// 若仍有今日及以后的有效预约引用该规则，则不删除并返回引用数
	DeleteUnreferenced(ctx context.Context, id string, today time.Time) (int64, error)
}

// RuleFilter 规则列表过滤条件
type RuleFilter struct {
	CoachID         string
	EventTypeID     *string // 仅返回适用于该活动类型的规则（含未限定活动类型的规则）
	IncludeInactive bool
}

type availabilityRuleRepo struct {
	db *gorm.DB
}

// NewAvailabilityRuleRepo 创建 AvailabilityRuleRepository 实例
func NewAvailabilityRuleRepo(db *gorm.DB) AvailabilityRuleRepository {
	return &availabilityRuleRepo{db: db}
}

func (r *availabilityRuleRepo) Create(ctx context.Context, rule *model.AvailabilityRule) error {
	return pkgerrors.ClassifyStorage(r.db.WithContext(ctx).Create(rule).Error)
}

func (r *availabilityRuleRepo) GetByID(ctx context.Context, id string) (*model.AvailabilityRule, error) {
	var rule model.AvailabilityRule
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", id).
		First(&rule).Error
	if err != nil {
		return nil, pkgerrors.ClassifyStorage(err)
	}
	return &rule, nil
}

func (r *availabilityRuleRepo) List(ctx context.Context, filter RuleFilter) ([]model.AvailabilityRule, error) {
	var rules []model.AvailabilityRule
	err := scopeRules(r.db.WithContext(ctx), filter).Find(&rules).Error
	return rules, pkgerrors.ClassifyStorage(err)
}

func (r *availabilityRuleRepo) Update(ctx context.Context, rule *model.AvailabilityRule) error {
	return pkgerrors.ClassifyStorage(r.db.WithContext(ctx).Save(rule).Error)
}

func (r *availabilityRuleRepo) DeleteUnreferenced(ctx context.Context, id string, today time.Time) (int64, error) {
	var refs int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Booking{}).
			Where("rule_id = ? AND status IN ? AND booking_date >= ?", id, model.ActiveBookingStatuses, dateKey(today)).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return nil
		}
		return tx.Where("rule_id = ?", id).Delete(&model.AvailabilityRule{}).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, pkgerrors.ClassifyStorage(err)
	}
	return refs, nil
}

// scopeRules 组装规则查询条件；排序固定，保证时段生成的去重结果稳定
func scopeRules(db *gorm.DB, filter RuleFilter) *gorm.DB {
	if filter.CoachID != "" {
		db = db.Where("coach_id = ?", filter.CoachID)
	}
	if filter.EventTypeID != nil {
		db = db.Where("(event_type_id IS NULL OR event_type_id = ?)", *filter.EventTypeID)
	}
	if !filter.IncludeInactive {
		db = db.Where("is_active = ?", true)
	}
	return db.Order("created_at ASC, rule_id ASC")
}
