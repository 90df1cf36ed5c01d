package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/response"
)

// AvailabilityRuleHandler 可预约规则模块 HTTP 处理器
type AvailabilityRuleHandler struct {
	ruleSvc service.AvailabilityRuleService
}

// NewAvailabilityRuleHandler 创建 AvailabilityRuleHandler
func NewAvailabilityRuleHandler(ruleSvc service.AvailabilityRuleService) *AvailabilityRuleHandler {
	return &AvailabilityRuleHandler{ruleSvc: ruleSvc}
}

// ListRules 获取可预约规则列表
// GET /api/v1/availability-rules
func (h *AvailabilityRuleHandler) ListRules(c *gin.Context) {
	var req dto.RuleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	rules, err := h.ruleSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": rules})
}

// GetRule 获取可预约规则详情
// GET /api/v1/availability-rules/:id
func (h *AvailabilityRuleHandler) GetRule(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "规则ID不能为空")
		return
	}

	rule, err := h.ruleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.OK(c, rule)
}

// CreateRule 创建可预约规则
// POST /api/v1/availability-rules
func (h *AvailabilityRuleHandler) CreateRule(c *gin.Context) {
	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	rule, err := h.ruleSvc.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.Created(c, rule)
}

// UpdateRule 更新可预约规则
// PUT /api/v1/availability-rules/:id
func (h *AvailabilityRuleHandler) UpdateRule(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "规则ID不能为空")
		return
	}

	var req dto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	rule, err := h.ruleSvc.Update(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.OK(c, rule)
}

// DeactivateRule 停用可预约规则，响应中提示仍引用该规则的未来预约数
// POST /api/v1/availability-rules/:id/deactivate
func (h *AvailabilityRuleHandler) DeactivateRule(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "规则ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.ruleSvc.Deactivate(c.Request.Context(), id, caller)
	if err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.OK(c, result)
}

// DeleteRule 删除可预约规则（仍被未来预约引用时拒绝）
// DELETE /api/v1/availability-rules/:id
func (h *AvailabilityRuleHandler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "规则ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.ruleSvc.Delete(c.Request.Context(), id, caller); err != nil {
		h.handleRuleError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleRuleError 统一处理可预约规则模块业务错误
func (h *AvailabilityRuleHandler) handleRuleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRuleNotFound):
		response.NotFound(c, 21001, "可预约规则不存在")
	case errors.Is(err, service.ErrRuleDependencyConflict):
		response.ErrorWithDetails(c, http.StatusConflict, 21002, "该规则仍被未来的预约引用，无法删除", err.Error())
	default:
		if !handleCommonError(c, err) {
			response.InternalError(c)
		}
	}
}
