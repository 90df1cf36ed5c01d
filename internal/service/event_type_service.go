package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/model"
	"admitcoach/scheduler/internal/repository"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// ── 活动类型模块业务错误 ──

var (
	ErrEventTypeNotFound        = errors.New("活动类型不存在")
	ErrEventTypeVersionConflict = errors.New("活动类型已被修改，请刷新后重试")
)

// EventTypeCatalog 按 ID 读取活动类型（带缓存），供预约与规则模块使用
type EventTypeCatalog interface {
	Lookup(ctx context.Context, id string) (*model.EventType, error)
	Fresh(ctx context.Context, id string) (*model.EventType, error)
}

// EventTypeService 活动类型业务接口
type EventTypeService interface {
	EventTypeCatalog
	List(ctx context.Context, req *dto.EventTypeListRequest) ([]dto.EventTypeResponse, error)
	GetByID(ctx context.Context, id string) (*dto.EventTypeResponse, error)
	Upsert(ctx context.Context, req *dto.UpsertEventTypeRequest, caller Caller) (*dto.EventTypeResponse, error)
	Deactivate(ctx context.Context, id string, caller Caller) (*dto.EventTypeResponse, error)
}

type eventTypeService struct {
	repo   *repository.Repository
	cache  *expirable.LRU[string, *model.EventType]
	logger *zap.Logger
}

// NewEventTypeService 创建 EventTypeService 实例
// 缓存只在本进程内失效，其他实例的修改最多在 cacheTTL 后可见
func NewEventTypeService(repo *repository.Repository, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) (EventTypeService, error) {
	if cacheSize <= 0 || cacheTTL <= 0 {
		return nil, fmt.Errorf("创建活动类型缓存失败: 容量 %d 与有效期 %s 必须大于 0", cacheSize, cacheTTL)
	}
	cache := expirable.NewLRU[string, *model.EventType](cacheSize, nil, cacheTTL)
	return &eventTypeService{repo: repo, cache: cache, logger: logger}, nil
}

// ────────────────────── Lookup ──────────────────────

// Lookup 返回副本，调用方修改不会污染缓存
func (s *eventTypeService) Lookup(ctx context.Context, id string) (*model.EventType, error) {
	if et, ok := s.cache.Get(id); ok {
		return et.Clone(), nil
	}

	et, err := s.Fresh(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, et.Clone())
	return et, nil
}

// Fresh 绕过缓存直接读库，用于取消、改期等需要最新策略的判定
func (s *eventTypeService) Fresh(ctx context.Context, id string) (*model.EventType, error) {
	et, err := s.repo.EventType.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventTypeNotFound
		}
		s.logger.Error("查询活动类型失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return et, nil
}

// ────────────────────── List ──────────────────────

func (s *eventTypeService) List(ctx context.Context, req *dto.EventTypeListRequest) ([]dto.EventTypeResponse, error) {
	list, err := s.repo.EventType.List(ctx, req.CoachID, req.IncludeInactive)
	if err != nil {
		s.logger.Error("列出活动类型失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.EventTypeResponse, 0, len(list))
	for i := range list {
		result = append(result, *toEventTypeResponse(&list[i]))
	}
	return result, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *eventTypeService) GetByID(ctx context.Context, id string) (*dto.EventTypeResponse, error) {
	et, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return toEventTypeResponse(et), nil
}

// ────────────────────── Upsert ──────────────────────

func (s *eventTypeService) Upsert(ctx context.Context, req *dto.UpsertEventTypeRequest, caller Caller) (*dto.EventTypeResponse, error) {
	if err := validateEventTypeRequest(req); err != nil {
		return nil, err
	}

	if req.EventTypeID == "" {
		return s.create(ctx, req, caller)
	}

	et, err := s.repo.EventType.GetByID(ctx, req.EventTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventTypeNotFound
		}
		s.logger.Error("查询活动类型失败", zap.String("id", req.EventTypeID), zap.Error(err))
		return nil, err
	}
	if !caller.canManageCoach(et.CoachID) {
		return nil, ErrForbidden
	}
	if req.Version > 0 && req.Version != et.Version {
		return nil, ErrEventTypeVersionConflict
	}

	applyEventTypeRequest(et, req)
	et.UpdatedBy = &caller.UserID

	if err := s.repo.EventType.Update(ctx, et); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrEventTypeVersionConflict
		}
		s.logger.Error("更新活动类型失败", zap.String("id", et.EventTypeID), zap.Error(err))
		return nil, err
	}
	s.cache.Remove(et.EventTypeID)

	s.logger.Info("活动类型已更新",
		zap.String("event_type_id", et.EventTypeID),
		zap.Int("version", et.Version),
	)
	return toEventTypeResponse(et), nil
}

func (s *eventTypeService) create(ctx context.Context, req *dto.UpsertEventTypeRequest, caller Caller) (*dto.EventTypeResponse, error) {
	coachID := caller.UserID
	if caller.IsAdmin() {
		if req.CoachID == "" {
			return nil, fmt.Errorf("%w: 管理员创建活动类型需指定 coach_id", ErrValidationFailed)
		}
		coachID = req.CoachID
	} else if caller.Role != RoleCoach {
		return nil, ErrForbidden
	}

	et := &model.EventType{CoachID: coachID, IsActive: true}
	applyEventTypeRequest(et, req)
	et.Version = 1
	et.CreatedBy = &caller.UserID
	et.UpdatedBy = &caller.UserID

	if err := s.repo.EventType.Create(ctx, et); err != nil {
		s.logger.Error("创建活动类型失败", zap.Error(err))
		return nil, err
	}
	return toEventTypeResponse(et), nil
}

// ────────────────────── Deactivate ──────────────────────

// Deactivate 软停用：已有预约不受影响，新的时段不再生成
func (s *eventTypeService) Deactivate(ctx context.Context, id string, caller Caller) (*dto.EventTypeResponse, error) {
	et, err := s.repo.EventType.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventTypeNotFound
		}
		s.logger.Error("查询活动类型失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if !caller.canManageCoach(et.CoachID) {
		return nil, ErrForbidden
	}
	if !et.IsActive {
		return toEventTypeResponse(et), nil
	}

	et.IsActive = false
	et.UpdatedBy = &caller.UserID
	if err := s.repo.EventType.Update(ctx, et); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrEventTypeVersionConflict
		}
		s.logger.Error("停用活动类型失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	s.cache.Remove(id)

	return toEventTypeResponse(et), nil
}

// ── 内部辅助方法 ──

// validateEventTypeRequest 结构校验 + 自定义问题的组合约束
func validateEventTypeRequest(req *dto.UpsertEventTypeRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	seen := make(map[string]bool, len(req.Questions))
	for _, q := range req.Questions {
		if seen[q.QuestionID] {
			return fmt.Errorf("%w: 问题 ID 重复: %s", ErrValidationFailed, q.QuestionID)
		}
		seen[q.QuestionID] = true

		switch q.Type {
		case model.QuestionTypeText:
			if len(q.Options) > 0 {
				return fmt.Errorf("%w: 文本问题 %s 不应包含选项", ErrValidationFailed, q.QuestionID)
			}
		case model.QuestionTypeSingleSelect, model.QuestionTypeMultiSelect:
			if len(q.Options) < 2 {
				return fmt.Errorf("%w: 选择题 %s 至少需要两个选项", ErrValidationFailed, q.QuestionID)
			}
		}
	}
	return nil
}

func applyEventTypeRequest(et *model.EventType, req *dto.UpsertEventTypeRequest) {
	et.Name = req.Name
	et.Kind = req.Kind
	et.DurationMinutes = req.DurationMinutes
	et.BufferBeforeMinutes = req.BufferBeforeMinutes
	et.BufferAfterMinutes = req.BufferAfterMinutes
	et.MaxBookingsPerDay = req.MaxBookingsPerDay
	et.AdvanceNoticeHours = req.AdvanceNoticeHours
	et.RequiresConfirmation = req.RequiresConfirmation
	et.AllowCancellation = req.AllowCancellation
	et.AllowReschedule = req.AllowReschedule

	questions := make([]model.CustomQuestion, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, model.CustomQuestion{
			QuestionID: q.QuestionID,
			Label:      q.Label,
			Type:       q.Type,
			Required:   q.Required,
			Options:    q.Options,
		})
	}
	et.Questions = datatypes.JSONSlice[model.CustomQuestion](questions)
}

func toEventTypeResponse(et *model.EventType) *dto.EventTypeResponse {
	questions := make([]dto.CustomQuestionDTO, 0, len(et.Questions))
	for _, q := range et.Questions {
		questions = append(questions, dto.CustomQuestionDTO{
			QuestionID: q.QuestionID,
			Label:      q.Label,
			Type:       q.Type,
			Required:   q.Required,
			Options:    q.Options,
		})
	}
	return &dto.EventTypeResponse{
		ID:                   et.EventTypeID,
		CoachID:              et.CoachID,
		Name:                 et.Name,
		Kind:                 et.Kind,
		DurationMinutes:      et.DurationMinutes,
		BufferBeforeMinutes:  et.BufferBeforeMinutes,
		BufferAfterMinutes:   et.BufferAfterMinutes,
		MaxBookingsPerDay:    et.MaxBookingsPerDay,
		AdvanceNoticeHours:   et.AdvanceNoticeHours,
		RequiresConfirmation: et.RequiresConfirmation,
		AllowCancellation:    et.AllowCancellation,
		AllowReschedule:      et.AllowReschedule,
		Questions:            questions,
		IsActive:             et.IsActive,
		Version:              et.Version,
		CreatedAt:            et.CreatedAt.Format(dto.TimeFormat),
		UpdatedAt:            et.UpdatedAt.Format(dto.TimeFormat),
	}
}
