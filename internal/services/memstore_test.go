package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/notification"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
)

// memStore is an in-memory stand-in for every repository the services use,
// with the same conditional-update semantics as the postgres implementations.
type memStore struct {
	mu            sync.Mutex
	transactions  map[string]*models.Transaction
	courses       map[string]*models.Course
	enrollments   map[string]*models.Enrollment
	appointments  map[string]*models.Appointment
	subscriptions map[string]*models.Subscription
	users         map[string]*models.User
	failEnroll    error
}

func newMemStore() *memStore {
	return &memStore{
		transactions:  map[string]*models.Transaction{},
		courses:       map[string]*models.Course{},
		enrollments:   map[string]*models.Enrollment{},
		appointments:  map[string]*models.Appointment{},
		subscriptions: map[string]*models.Subscription{},
		users:         map[string]*models.User{},
	}
}

func enrollmentKey(userID, courseID string) string { return userID + "|" + courseID }

func (m *memStore) Create(_ context.Context, tx *models.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = "tx_generated"
	}
	cp := *tx
	m.transactions[tx.ID] = &cp
	return tx.ID, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) GetByPaymentID(_ context.Context, paymentID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		var gw models.GatewayResponse
		if len(tx.GatewayResponse) == 0 || json.Unmarshal(tx.GatewayResponse, &gw) != nil {
			continue
		}
		if gw.PaymentID == paymentID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memStore) transition(id string, to models.StatusType, from ...models.StatusType) (*models.Transaction, bool) {
	tx, ok := m.transactions[id]
	if !ok {
		return nil, false
	}
	for _, f := range from {
		if tx.Status == f {
			tx.Status = to
			return tx, true
		}
	}
	return tx, false
}

// MarkCompleted applies the status change and the grant under one lock; a
// grant failure leaves both untouched, like the postgres rollback.
func (m *memStore) MarkCompleted(_ context.Context, in *models.Transaction, gw json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[in.ID]
	if !ok || (tx.Status != models.StatusPending && tx.Status != models.StatusFailed) {
		return false, nil
	}
	switch in.Type {
	case models.TypeCoursePurchase:
		if in.CourseID == "" {
			return false, pkgerrors.ErrInvalidInput
		}
		if m.failEnroll != nil {
			return false, m.failEnroll
		}
		m.enroll(in.UserID, in.CourseID)
	case models.TypeAppointmentBooking:
		if in.AppointmentID == "" {
			return false, pkgerrors.ErrInvalidInput
		}
		if a, ok := m.appointments[in.AppointmentID]; ok && a.Status == models.AppointmentScheduled {
			a.Status = models.AppointmentConfirmed
		}
	}
	tx.Status = models.StatusCompleted
	tx.GatewayResponse = gw
	return true, nil
}

func (m *memStore) MarkFailed(_ context.Context, id string, gw json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transition(id, models.StatusFailed, models.StatusPending)
	if ok {
		tx.GatewayResponse = gw
	}
	return ok, nil
}

func (m *memStore) MarkRefunded(_ context.Context, id string, amount int64, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transition(id, models.StatusRefunded, models.StatusCompleted)
	if ok {
		tx.RefundAmount = amount
		tx.RefundReason = reason
	}
	return ok, nil
}

func (m *memStore) enroll(userID, courseID string) {
	key := enrollmentKey(userID, courseID)
	if e, ok := m.enrollments[key]; ok {
		if e.Status == models.EnrollmentActive {
			return
		}
		e.Status = models.EnrollmentActive
	} else {
		m.enrollments[key] = &models.Enrollment{ID: key, UserID: userID, CourseID: courseID, Status: models.EnrollmentActive}
	}
	if c, ok := m.courses[courseID]; ok {
		c.TotalStudents++
	}
}

func (m *memStore) Revoke(_ context.Context, userID, courseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentKey(userID, courseID)]
	if !ok || e.Status != models.EnrollmentActive {
		return false, nil
	}
	e.Status = models.EnrollmentRefunded
	if c, ok := m.courses[courseID]; ok && c.TotalStudents > 0 {
		c.TotalStudents--
	}
	return true, nil
}

func (m *memStore) enrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

// The adapters below give memStore the per-repository method sets where the
// method names collide (GetByID, Create, Cancel).

type memCourses struct{ *memStore }

func (m memCourses) GetByID(_ context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, pkgerrors.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

type memAppointments struct{ *memStore }

func (m memAppointments) GetByID(_ context.Context, id string) (*models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, pkgerrors.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAppointments) Cancel(_ context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status == models.AppointmentCancelled {
		return false, nil
	}
	a.Status = models.AppointmentCancelled
	a.CancellationReason = reason
	return true, nil
}

type memSubscriptions struct{ *memStore }

func (m memSubscriptions) Create(_ context.Context, sub *models.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[sub.GatewaySubscriptionID]; ok {
		return false, nil
	}
	cp := *sub
	m.subscriptions[sub.GatewaySubscriptionID] = &cp
	return true, nil
}

func (m memSubscriptions) Cancel(_ context.Context, gatewayID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[gatewayID]
	if !ok || s.Status == models.SubscriptionCancelled {
		return false, nil
	}
	s.Status = models.SubscriptionCancelled
	s.CancelledAt = &at
	return true, nil
}

type memUsers struct{ *memStore }

func (m memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	emails []notification.Email
	err    error
}

func (d *recordingDispatcher) Send(_ context.Context, e notification.Email) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = append(d.emails, e)
	return d.err
}

func (d *recordingDispatcher) sent() []notification.Email {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification.Email(nil), d.emails...)
}

type fakeEntry struct {
	value   string
	expires time.Time
}

// fakeRedis honours key expiry against its own clock, moved with advance.
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]fakeEntry
	now  time.Time
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]fakeEntry{}, now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (r *fakeRedis) advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(d)
}

func (r *fakeRedis) value(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live(key)
	return e.value, ok
}

func (r *fakeRedis) live(key string) (fakeEntry, bool) {
	e, ok := r.keys[key]
	if !ok || (!e.expires.IsZero() && !r.now.Before(e.expires)) {
		return fakeEntry{}, false
	}
	return e, true
}

func (r *fakeRedis) put(key string, value interface{}, ttl time.Duration) {
	e := fakeEntry{value: value.(string)}
	if ttl > 0 {
		e.expires = r.now.Add(ttl)
	}
	r.keys[key] = e
}

func (r *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if _, ok := r.live(key); ok {
		return false, nil
	}
	r.put(key, value, ttl)
	return true, nil
}

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.put(key, value, ttl)
	return nil
}

func (r *fakeRedis) Del(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}

func (r *fakeRedis) Close() error { return nil }
