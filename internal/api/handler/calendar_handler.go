package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/response"
)

// CalendarHandler 日历视图 HTTP 处理器
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// GetCalendar 获取教练在 [start, end) 内的日历
// GET /api/v1/coaches/:id/calendar
func (h *CalendarHandler) GetCalendar(c *gin.Context) {
	coachID := c.Param("id")
	if coachID == "" {
		response.BadRequest(c, 10001, "教练ID不能为空")
		return
	}

	var req dto.CalendarRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cal, err := h.calendarSvc.GetCalendar(c.Request.Context(), coachID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventTypeNotFound):
			response.NotFound(c, 20001, "活动类型不存在")
		default:
			if !handleCommonError(c, err) {
				response.InternalError(c)
			}
		}
		return
	}

	response.OK(c, cal)
}
