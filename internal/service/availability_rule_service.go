package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/model"
	"admitcoach/scheduler/internal/repository"
	"admitcoach/scheduler/internal/scheduling"
)

// ── 可预约规则模块业务错误 ──

var (
	ErrRuleNotFound = errors.New("可预约规则不存在")
	// ErrRuleDependencyConflict 仍有未来的有效预约由该规则生成，拒绝物理删除
	ErrRuleDependencyConflict = errors.New("该规则仍被未来的预约引用，无法删除")
)

// AvailabilityRuleService 可预约规则业务接口
type AvailabilityRuleService interface {
	Create(ctx context.Context, req *dto.CreateRuleRequest, caller Caller) (*dto.RuleResponse, error)
	GetByID(ctx context.Context, id string) (*dto.RuleResponse, error)
	List(ctx context.Context, req *dto.RuleListRequest) ([]dto.RuleResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateRuleRequest, caller Caller) (*dto.RuleResponse, error)
	Deactivate(ctx context.Context, id string, caller Caller) (*dto.DeactivateRuleResponse, error)
	Delete(ctx context.Context, id string, caller Caller) error
}

type availabilityRuleService struct {
	repo    *repository.Repository
	catalog EventTypeCatalog
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

// NewAvailabilityRuleService 创建 AvailabilityRuleService 实例
func NewAvailabilityRuleService(repo *repository.Repository, catalog EventTypeCatalog, loc *time.Location, logger *zap.Logger) AvailabilityRuleService {
	return &availabilityRuleService{
		repo:    repo,
		catalog: catalog,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

// ────────────────────── Create ──────────────────────

func (s *availabilityRuleService) Create(ctx context.Context, req *dto.CreateRuleRequest, caller Caller) (*dto.RuleResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	coachID := caller.UserID
	if caller.IsAdmin() {
		if req.CoachID == "" {
			return nil, fmt.Errorf("%w: 管理员创建规则需指定 coach_id", ErrValidationFailed)
		}
		coachID = req.CoachID
	}
	if !caller.canManageCoach(coachID) {
		return nil, ErrForbidden
	}

	rule := &model.AvailabilityRule{
		CoachID:     coachID,
		EventTypeID: req.EventTypeID,
		Kind:        req.Kind,
		IsActive:    true,
	}
	switch req.Kind {
	case model.RuleKindRecurring:
		if req.DayOfWeek == nil || req.StartTime == nil || req.EndTime == nil || len(req.Windows) > 0 || req.SpecificDate != nil {
			return nil, fmt.Errorf("%w: 每周规则需要 day_of_week、start_time、end_time", ErrValidationFailed)
		}
		rule.DayOfWeek = req.DayOfWeek
		rule.StartTime = req.StartTime
		rule.EndTime = req.EndTime
	case model.RuleKindSpecificDate:
		if req.SpecificDate == nil || len(req.Windows) == 0 || req.DayOfWeek != nil || req.StartTime != nil || req.EndTime != nil {
			return nil, fmt.Errorf("%w: 指定日期规则需要 specific_date 与 windows", ErrValidationFailed)
		}
		d, err := scheduling.ParseDate(*req.SpecificDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		rule.SpecificDate = &d
		rule.Windows = toModelWindows(req.Windows)
	}

	if err := s.checkRule(ctx, rule); err != nil {
		return nil, err
	}

	rule.CreatedBy = &caller.UserID
	rule.UpdatedBy = &caller.UserID
	if err := s.repo.AvailabilityRule.Create(ctx, rule); err != nil {
		s.logger.Error("创建可预约规则失败", zap.Error(err))
		return nil, err
	}

	return toRuleResponse(rule), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *availabilityRuleService) GetByID(ctx context.Context, id string) (*dto.RuleResponse, error) {
	rule, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRuleResponse(rule), nil
}

// ────────────────────── List ──────────────────────

func (s *availabilityRuleService) List(ctx context.Context, req *dto.RuleListRequest) ([]dto.RuleResponse, error) {
	rules, err := s.repo.AvailabilityRule.List(ctx, repository.RuleFilter{
		CoachID:         req.CoachID,
		EventTypeID:     req.EventTypeID,
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		s.logger.Error("列出可预约规则失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		result = append(result, *toRuleResponse(&rules[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

// Update 修改窗口只影响之后生成的时段，已存在的预约是独立记录，不受影响
func (s *availabilityRuleService) Update(ctx context.Context, id string, req *dto.UpdateRuleRequest, caller Caller) (*dto.RuleResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	rule, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.canManageCoach(rule.CoachID) {
		return nil, ErrForbidden
	}

	if rule.Kind == model.RuleKindRecurring {
		if req.SpecificDate != nil || len(req.Windows) > 0 {
			return nil, fmt.Errorf("%w: 每周规则不能设置 specific_date / windows", ErrValidationFailed)
		}
		if req.DayOfWeek != nil {
			rule.DayOfWeek = req.DayOfWeek
		}
		if req.StartTime != nil {
			rule.StartTime = req.StartTime
		}
		if req.EndTime != nil {
			rule.EndTime = req.EndTime
		}
	} else {
		if req.DayOfWeek != nil || req.StartTime != nil || req.EndTime != nil {
			return nil, fmt.Errorf("%w: 指定日期规则不能设置 day_of_week / start_time / end_time", ErrValidationFailed)
		}
		if req.SpecificDate != nil {
			d, err := scheduling.ParseDate(*req.SpecificDate)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
			rule.SpecificDate = &d
		}
		if len(req.Windows) > 0 {
			rule.Windows = toModelWindows(req.Windows)
		}
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.checkRule(ctx, rule); err != nil {
		return nil, err
	}

	rule.UpdatedBy = &caller.UserID
	if err := s.repo.AvailabilityRule.Update(ctx, rule); err != nil {
		s.logger.Error("更新可预约规则失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return toRuleResponse(rule), nil
}

// ────────────────────── Deactivate ──────────────────────

// Deactivate 从不阻塞；仅提示仍由该规则生成的未来预约数量（这些预约继续有效）
func (s *availabilityRuleService) Deactivate(ctx context.Context, id string, caller Caller) (*dto.DeactivateRuleResponse, error) {
	rule, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.canManageCoach(rule.CoachID) {
		return nil, ErrForbidden
	}

	if rule.IsActive {
		rule.IsActive = false
		rule.UpdatedBy = &caller.UserID
		if err := s.repo.AvailabilityRule.Update(ctx, rule); err != nil {
			s.logger.Error("停用可预约规则失败", zap.String("id", id), zap.Error(err))
			return nil, err
		}
	}

	today, _ := scheduling.Today(s.now(), s.loc)
	affected, err := s.repo.Booking.CountActiveByRule(ctx, id, today)
	if err != nil {
		s.logger.Error("统计规则关联预约失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	resp := &dto.DeactivateRuleResponse{Rule: *toRuleResponse(rule), AffectedBookings: affected}
	if affected > 0 {
		resp.Warning = fmt.Sprintf("仍有 %d 个未来预约由该规则生成，这些预约保持有效", affected)
		s.logger.Warn("停用的规则仍有未来预约",
			zap.String("rule_id", id),
			zap.Int64("affected_bookings", affected),
		)
	}
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *availabilityRuleService) Delete(ctx context.Context, id string, caller Caller) error {
	rule, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !caller.canManageCoach(rule.CoachID) {
		return ErrForbidden
	}

	today, _ := scheduling.Today(s.now(), s.loc)
	refs, err := s.repo.AvailabilityRule.DeleteUnreferenced(ctx, id, today)
	if err != nil {
		s.logger.Error("删除可预约规则失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: 关联预约 %d 个", ErrRuleDependencyConflict, refs)
	}

	s.logger.Info("可预约规则已删除", zap.String("rule_id", id))
	return nil
}

// ── 内部辅助方法 ──

func (s *availabilityRuleService) load(ctx context.Context, id string) (*model.AvailabilityRule, error) {
	rule, err := s.repo.AvailabilityRule.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		s.logger.Error("查询可预约规则失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return rule, nil
}

// checkRule 窗口合法性；限定活动类型时还要求活动类型属于同一教练且窗口不短于时长
func (s *availabilityRuleService) checkRule(ctx context.Context, rule *model.AvailabilityRule) error {
	windows := rule.EffectiveWindows()
	if len(windows) == 0 {
		return fmt.Errorf("%w: 规则至少需要一个时间窗口", ErrValidationFailed)
	}

	minLen := scheduling.Clock(1)
	if rule.EventTypeID != nil {
		et, err := s.catalog.Lookup(ctx, *rule.EventTypeID)
		if err != nil {
			if errors.Is(err, ErrEventTypeNotFound) {
				return fmt.Errorf("%w: 活动类型不存在", ErrValidationFailed)
			}
			return err
		}
		if et.CoachID != rule.CoachID {
			return fmt.Errorf("%w: 活动类型不属于该教练", ErrValidationFailed)
		}
		minLen = scheduling.Clock(et.DurationMinutes)
	}

	for _, w := range windows {
		start, end, err := scheduling.ValidWindow(w.StartTime, w.EndTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		if end-start < minLen {
			return fmt.Errorf("%w: 窗口 %s-%s 短于活动时长", ErrValidationFailed, w.StartTime, w.EndTime)
		}
	}
	return nil
}

func toModelWindows(in []dto.TimeWindowDTO) datatypes.JSONSlice[model.TimeWindow] {
	out := make([]model.TimeWindow, 0, len(in))
	for _, w := range in {
		out = append(out, model.TimeWindow{StartTime: w.StartTime, EndTime: w.EndTime})
	}
	return out
}

func toRuleResponse(rule *model.AvailabilityRule) *dto.RuleResponse {
	resp := &dto.RuleResponse{
		ID:          rule.RuleID,
		CoachID:     rule.CoachID,
		EventTypeID: rule.EventTypeID,
		Kind:        rule.Kind,
		DayOfWeek:   rule.DayOfWeek,
		StartTime:   rule.StartTime,
		EndTime:     rule.EndTime,
		IsActive:    rule.IsActive,
		CreatedAt:   rule.CreatedAt.Format(dto.TimeFormat),
		UpdatedAt:   rule.UpdatedAt.Format(dto.TimeFormat),
	}
	if rule.SpecificDate != nil {
		d := scheduling.DateKey(*rule.SpecificDate)
		resp.SpecificDate = &d
	}
	for _, w := range rule.Windows {
		resp.Windows = append(resp.Windows, dto.TimeWindowDTO{StartTime: w.StartTime, EndTime: w.EndTime})
	}
	return resp
}
