package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"admitcoach/scheduler/internal/model"
	"admitcoach/scheduler/internal/repository"
	pkgerrors "admitcoach/scheduler/pkg/errors"
)

// testRepos 聚合所有 mock repo 便于 seed 数据
type testRepos struct {
	eventType *mockEventTypeRepo
	rule      *mockRuleRepo
	booking   *mockBookingRepo
}

func newTestRepos() *testRepos {
	r := &testRepos{
		eventType: &mockEventTypeRepo{items: make(map[string]*model.EventType)},
		rule:      &mockRuleRepo{items: make(map[string]*model.AvailabilityRule)},
	}
	r.booking = &mockBookingRepo{items: make(map[string]*model.Booking), repos: r}
	r.rule.repos = r
	return r
}

func (r *testRepos) toRepository() *repository.Repository {
	return &repository.Repository{
		EventType:        r.eventType,
		AvailabilityRule: r.rule,
		Booking:          r.booking,
		Snapshot:         &mockSnapshotRepo{repos: r},
	}
}

// ── Mock EventTypeRepository ──

type mockEventTypeRepo struct {
	mu    sync.Mutex
	items map[string]*model.EventType
	reads int
}

func (m *mockEventTypeRepo) Create(_ context.Context, et *model.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et.EventTypeID == "" {
		et.EventTypeID = "et-" + et.Name
	}
	cp := *et
	m.items[et.EventTypeID] = &cp
	return nil
}

func (m *mockEventTypeRepo) GetByID(_ context.Context, id string) (*model.EventType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if et, ok := m.items[id]; ok {
		cp := *et
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventTypeRepo) List(_ context.Context, coachID string, includeInactive bool) ([]model.EventType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventType
	for _, et := range m.items {
		if coachID != "" && et.CoachID != coachID {
			continue
		}
		if !includeInactive && !et.IsActive {
			continue
		}
		out = append(out, *et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTypeID < out[j].EventTypeID })
	return out, nil
}

func (m *mockEventTypeRepo) Update(_ context.Context, et *model.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[et.EventTypeID]
	if !ok || cur.Version != et.Version {
		return pkgerrors.ErrOptimisticLock
	}
	et.Version++
	cp := *et
	m.items[et.EventTypeID] = &cp
	return nil
}

// referencedBy 返回预约引用的活动类型副本
func (m *mockEventTypeRepo) referencedBy(bookings []model.Booking) []model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []model.EventType
	for _, b := range bookings {
		if et, ok := m.items[b.EventTypeID]; ok && !seen[b.EventTypeID] {
			seen[b.EventTypeID] = true
			out = append(out, *et)
		}
	}
	return out
}

func (m *mockEventTypeRepo) get(id string) *model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et, ok := m.items[id]; ok {
		cp := *et
		return &cp
	}
	return nil
}

// ── Mock AvailabilityRuleRepository ──

type mockRuleRepo struct {
	mu    sync.Mutex
	items map[string]*model.AvailabilityRule
	order []string
	repos *testRepos
}

func (m *mockRuleRepo) Create(_ context.Context, rule *model.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.RuleID == "" {
		rule.RuleID = fmt.Sprintf("rule-%d", len(m.order)+1)
	}
	cp := *rule
	m.items[rule.RuleID] = &cp
	m.order = append(m.order, rule.RuleID)
	return nil
}

func (m *mockRuleRepo) GetByID(_ context.Context, id string) (*model.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.items[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRuleRepo) List(_ context.Context, filter repository.RuleFilter) ([]model.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AvailabilityRule
	for _, id := range m.order {
		r, ok := m.items[id]
		if !ok {
			continue
		}
		if filter.CoachID != "" && r.CoachID != filter.CoachID {
			continue
		}
		if filter.EventTypeID != nil && !r.AppliesTo(*filter.EventTypeID) {
			continue
		}
		if !filter.IncludeInactive && !r.IsActive {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRuleRepo) Update(_ context.Context, rule *model.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.items[rule.RuleID] = &cp
	return nil
}

func (m *mockRuleRepo) DeleteUnreferenced(ctx context.Context, id string, today time.Time) (int64, error) {
	refs, _ := m.repos.booking.CountActiveByRule(ctx, id, today)
	if refs > 0 {
		return refs, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return 0, nil
}

// ── Mock BookingRepository ──
// 互斥锁模拟存储层的原子条件写入

type mockBookingRepo struct {
	mu    sync.Mutex
	items map[string]*model.Booking
	repos *testRepos

	// reserveErr 非 nil 时 Reserve / Reschedule 直接返回该错误
	reserveErr error
}

func (m *mockBookingRepo) seed(b model.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := b
	m.items[b.BookingID] = &cp
}

func (m *mockBookingRepo) get(id string) *model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.items[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (m *mockBookingRepo) count(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.items {
		if b.Status == status {
			n++
		}
	}
	return n
}

// stateLocked 读取与真实事务一致的状态，调用方须持有锁
func (m *mockBookingRepo) stateLocked(coachID, eventTypeID string, date time.Time) (*repository.ReserveState, error) {
	et := m.repos.eventType.get(eventTypeID)
	if et == nil {
		return nil, gorm.ErrRecordNotFound
	}
	rules, _ := m.repos.rule.List(context.Background(), repository.RuleFilter{CoachID: coachID, EventTypeID: &eventTypeID})

	var bookings []model.Booking
	for _, b := range m.items {
		if b.CoachID == coachID && b.IsActive() && dateKey(b.BookingDate) == dateKey(date) {
			bookings = append(bookings, *b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].StartTime < bookings[j].StartTime })
	return &repository.ReserveState{
		EventType:        et,
		Rules:            rules,
		Bookings:         bookings,
		BookedEventTypes: m.repos.eventType.referencedBy(bookings),
	}, nil
}

func (m *mockBookingRepo) insertLocked(b *model.Booking) error {
	for _, cur := range m.items {
		if cur.IsActive() && cur.CoachID == b.CoachID &&
			dateKey(cur.BookingDate) == dateKey(b.BookingDate) && cur.StartTime == b.StartTime {
			return pkgerrors.ErrSlotTaken
		}
	}
	cp := *b
	m.items[b.BookingID] = &cp
	return nil
}

func (m *mockBookingRepo) Reserve(_ context.Context, b *model.Booking, check repository.ReserveCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return m.reserveErr
	}
	state, err := m.stateLocked(b.CoachID, b.EventTypeID, b.BookingDate)
	if err != nil {
		return err
	}
	if err := check(state); err != nil {
		return err
	}
	return m.insertLocked(b)
}

func (m *mockBookingRepo) Reschedule(_ context.Context, oldID string, next *model.Booking, check repository.ReserveCheck, cancelledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return m.reserveErr
	}
	old, ok := m.items[oldID]
	if !ok || !old.IsActive() {
		return pkgerrors.ErrStateChanged
	}
	backup := *old

	old.Status = model.BookingStatusCancelled
	old.CancelReason = "rescheduled"
	old.CancelledAt = &cancelledAt

	rollback := func(err error) error {
		m.items[oldID] = &backup
		return err
	}
	state, err := m.stateLocked(next.CoachID, next.EventTypeID, next.BookingDate)
	if err != nil {
		return rollback(err)
	}
	if err := check(state); err != nil {
		return rollback(err)
	}
	if err := m.insertLocked(next); err != nil {
		return rollback(err)
	}
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id string) (*model.Booking, error) {
	if b := m.get(id); b != nil {
		return b, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockBookingRepo) List(_ context.Context, filter repository.BookingFilter) ([]model.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.items {
		if filter.CoachID != "" && b.CoachID != filter.CoachID {
			continue
		}
		if filter.RequesterID != "" && (b.RequesterID == nil || *b.RequesterID != filter.RequesterID) {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.From != nil && dateKey(b.BookingDate) < dateKey(*filter.From) {
			continue
		}
		if filter.To != nil && dateKey(b.BookingDate) >= dateKey(*filter.To) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if dateKey(out[i].BookingDate) != dateKey(out[j].BookingDate) {
			return dateKey(out[i].BookingDate) < dateKey(out[j].BookingDate)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, int64(len(out)), nil
}

func (m *mockBookingRepo) UpdateStatus(_ context.Context, id string, from []string, updates map[string]interface{}) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || !contains(from, b.Status) {
		return nil, pkgerrors.ErrStateChanged
	}
	applyBookingUpdates(b, updates)
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepo) CompleteElapsed(_ context.Context, today time.Time, nowClock string, at time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var done []model.Booking
	d := dateKey(today)
	for _, b := range m.items {
		if b.Status != model.BookingStatusConfirmed {
			continue
		}
		bd := dateKey(b.BookingDate)
		if bd < d || (bd == d && b.EndTime < nowClock) {
			b.Status = model.BookingStatusCompleted
			b.CompletedAt = &at
			done = append(done, *b)
		}
	}
	return done, nil
}

func (m *mockBookingRepo) DueReminders(_ context.Context, from, to time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04")
	var out []model.Booking
	for _, b := range m.items {
		if b.Status != model.BookingStatusConfirmed || b.ReminderSent {
			continue
		}
		at := dateKey(b.BookingDate) + " " + b.StartTime
		if at >= lo && at <= hi {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBookingRepo) MarkReminderSent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || b.ReminderSent {
		return false, nil
	}
	b.ReminderSent = true
	return true, nil
}

func (m *mockBookingRepo) MarkNotified(_ context.Context, id string, confirmationSent, reminderSent *bool) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if confirmationSent != nil {
		b.ConfirmationSent = *confirmationSent
	}
	if reminderSent != nil {
		b.ReminderSent = *reminderSent
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingRepo) CountActiveByRule(_ context.Context, ruleID string, today time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.items {
		if b.RuleID != nil && *b.RuleID == ruleID && b.IsActive() && dateKey(b.BookingDate) >= dateKey(today) {
			n++
		}
	}
	return n, nil
}

// ── Mock SnapshotRepository ──

type mockSnapshotRepo struct {
	repos *testRepos
}

func (m *mockSnapshotRepo) Load(ctx context.Context, coachID string, eventTypeID *string, from, to time.Time) (*repository.CalendarSnapshot, error) {
	snap := &repository.CalendarSnapshot{}
	ets, _ := m.repos.eventType.List(ctx, coachID, eventTypeID != nil)
	for _, et := range ets {
		if eventTypeID == nil || et.EventTypeID == *eventTypeID {
			snap.EventTypes = append(snap.EventTypes, et)
		}
	}
	snap.Rules, _ = m.repos.rule.List(ctx, repository.RuleFilter{CoachID: coachID, EventTypeID: eventTypeID})

	all, _, _ := m.repos.booking.List(ctx, repository.BookingFilter{CoachID: coachID, From: &from, To: &to})
	for _, b := range all {
		if b.IsActive() {
			snap.Bookings = append(snap.Bookings, b)
		}
	}
	snap.BookedEventTypes = m.repos.eventType.referencedBy(snap.Bookings)
	return snap, nil
}

// ── Mock EventPublisher / IdempotencyStore ──

type mockPublisher struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (p *mockPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && routingKey == p.failOn {
		return context.DeadlineExceeded
	}
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *mockPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *mockIdempotency) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	return v, ok, nil
}

func (m *mockIdempotency) Remember(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

// ── 辅助函数 ──

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func applyBookingUpdates(b *model.Booking, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			b.Status = v.(string)
		case "cancel_reason":
			b.CancelReason = v.(string)
		case "confirmed_at":
			t := v.(time.Time)
			b.ConfirmedAt = &t
		case "cancelled_at":
			t := v.(time.Time)
			b.CancelledAt = &t
		case "updated_at":
			b.UpdatedAt = v.(time.Time)
		}
	}
}
