package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/response"
)

// EventTypeHandler 活动类型模块 HTTP 处理器
type EventTypeHandler struct {
	eventTypeSvc service.EventTypeService
}

// NewEventTypeHandler 创建 EventTypeHandler
func NewEventTypeHandler(eventTypeSvc service.EventTypeService) *EventTypeHandler {
	return &EventTypeHandler{eventTypeSvc: eventTypeSvc}
}

// ListEventTypes 获取活动类型列表
// GET /api/v1/event-types
func (h *EventTypeHandler) ListEventTypes(c *gin.Context) {
	var req dto.EventTypeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.eventTypeSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleEventTypeError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetEventType 获取活动类型详情
// GET /api/v1/event-types/:id
func (h *EventTypeHandler) GetEventType(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "活动类型ID不能为空")
		return
	}

	et, err := h.eventTypeSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleEventTypeError(c, err)
		return
	}

	response.OK(c, et)
}

// UpsertEventType 创建或更新活动类型（请求体不带 event_type_id 时创建）
// PUT /api/v1/event-types
func (h *EventTypeHandler) UpsertEventType(c *gin.Context) {
	var req dto.UpsertEventTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	et, err := h.eventTypeSvc.Upsert(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleEventTypeError(c, err)
		return
	}

	if req.EventTypeID == "" {
		response.Created(c, et)
		return
	}
	response.OK(c, et)
}

// DeactivateEventType 停用活动类型
// POST /api/v1/event-types/:id/deactivate
func (h *EventTypeHandler) DeactivateEventType(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "活动类型ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	et, err := h.eventTypeSvc.Deactivate(c.Request.Context(), id, caller)
	if err != nil {
		h.handleEventTypeError(c, err)
		return
	}

	response.OK(c, et)
}

// handleEventTypeError 统一处理活动类型模块业务错误
func (h *EventTypeHandler) handleEventTypeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEventTypeNotFound):
		response.NotFound(c, 20001, "活动类型不存在")
	case errors.Is(err, service.ErrEventTypeVersionConflict):
		response.Conflict(c, 20002, "活动类型已被修改，请刷新后重试")
	default:
		if !handleCommonError(c, err) {
			response.InternalError(c)
		}
	}
}
