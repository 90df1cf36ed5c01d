package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"admitcoach/scheduler/internal/dto"
	"admitcoach/scheduler/internal/service"
	"admitcoach/scheduler/pkg/response"
)

// idempotencyKeyMaxLen 限制 Idempotency-Key 长度
const idempotencyKeyMaxLen = 128

// BookingHandler 预约模块 HTTP 处理器
type BookingHandler struct {
	bookingSvc service.BookingService
}

// NewBookingHandler 创建 BookingHandler
func NewBookingHandler(bookingSvc service.BookingService) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc}
}

// Reserve 预约一个时段
// POST /api/v1/bookings
// 请求头 Idempotency-Key 可选；同一调用方重复提交同一键时返回首次创建的预约
func (h *BookingHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if len(key) > idempotencyKeyMaxLen {
		response.BadRequest(c, 10001, "Idempotency-Key 过长")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Reserve(c.Request.Context(), &req, key, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.Created(c, booking)
}

// ListBookings 分页获取预约列表（按调用方角色限定范围）
// GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	var req dto.BookingListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, total, err := h.bookingSvc.List(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetBooking 获取预约详情
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, caller, ok := bookingTarget(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.GetByID(c.Request.Context(), id, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// ConfirmBooking 确认待确认的预约
// POST /api/v1/bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	id, caller, ok := bookingTarget(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Confirm(c.Request.Context(), id, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// CancelBooking 取消预约，请求体可省略
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req dto.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	id, caller, ok := bookingTarget(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Cancel(c.Request.Context(), id, req.Reason, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// RescheduleBooking 改期：成功时返回新预约，原预约已取消
// POST /api/v1/bookings/:id/reschedule
func (h *BookingHandler) RescheduleBooking(c *gin.Context) {
	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	id, caller, ok := bookingTarget(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.Reschedule(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.Created(c, booking)
}

// MarkNoShow 标记爽约
// POST /api/v1/bookings/:id/no-show
func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	id, caller, ok := bookingTarget(c)
	if !ok {
		return
	}

	booking, err := h.bookingSvc.MarkNoShow(c.Request.Context(), id, caller)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// MarkNotified 消息投递方回调：更新确认/提醒发送标记
// PUT /api/v1/bookings/:id/notifications
func (h *BookingHandler) MarkNotified(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "预约ID不能为空")
		return
	}

	var req dto.MarkNotifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	booking, err := h.bookingSvc.MarkNotified(c.Request.Context(), id, &req)
	if err != nil {
		h.handleBookingError(c, err)
		return
	}

	response.OK(c, booking)
}

// bookingTarget 提取路径中的预约 ID 与调用方
func bookingTarget(c *gin.Context) (string, service.Caller, bool) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "预约ID不能为空")
		return "", service.Caller{}, false
	}
	caller, ok := MustGetCaller(c)
	if !ok {
		return "", service.Caller{}, false
	}
	return id, caller, true
}

// handleBookingError 统一处理预约模块业务错误
func (h *BookingHandler) handleBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBookingNotFound):
		response.NotFound(c, 22001, "预约不存在")
	case errors.Is(err, service.ErrSlotNoLongerAvailable):
		response.Conflict(c, 22002, "该时段已不可预约，请刷新日历后重试")
	case errors.Is(err, service.ErrDailyCapReached):
		response.Conflict(c, 22003, "该活动类型当日预约已满")
	case errors.Is(err, service.ErrAdvanceNoticeViolated):
		response.UnprocessableEntity(c, 22004, "未满足最短提前预约时间")
	case errors.Is(err, service.ErrEventTypeInactive):
		response.UnprocessableEntity(c, 22005, "活动类型已停用")
	case errors.Is(err, service.ErrInvalidTransition):
		response.ErrorWithDetails(c, http.StatusConflict, 22006, "当前预约状态不允许该操作", err.Error())
	case errors.Is(err, service.ErrEventTypeNotFound):
		response.NotFound(c, 20001, "活动类型不存在")
	default:
		if !handleCommonError(c, err) {
			response.InternalError(c)
		}
	}
}
