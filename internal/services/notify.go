package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/notification"
	"github.com/bnoverseas/payments-service/internal/webhook"
)

const appointmentTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

func gatewaySnapshot(p webhook.PaymentEntity, status string, now time.Time) models.GatewayResponse {
	ts := now.UTC()
	if p.CreatedAt > 0 {
		ts = time.Unix(p.CreatedAt, 0).UTC()
	}
	if p.Status != "" {
		status = p.Status
	}
	return models.GatewayResponse{
		PaymentID:        p.ID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		Status:           status,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		Timestamp:        ts,
	}
}

// formatAmount renders minor units, e.g. 499900 INR -> "INR 4999.00".
func formatAmount(minor int64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, minor/100, minor%100)
}

func (s *webhookService) link(path string) string {
	return strings.TrimRight(s.appURL, "/") + path
}

// baseEmail resolves the recipient and the fields every template shares.
// A false result means the user could not be resolved and nothing is sent.
func (s *webhookService) baseEmail(ctx context.Context, tx *models.Transaction, amount int64, currency string) (notification.Email, bool) {
	user, err := s.users.GetByID(ctx, tx.UserID)
	if err != nil {
		slog.Error("failed to resolve user for notification", "transaction_id", tx.ID, "user_id", tx.UserID, "error", err)
		return notification.Email{}, false
	}
	if amount == 0 {
		amount, currency = tx.Amount, tx.Currency
	}
	name := user.Name
	if name == "" {
		name = "there"
	}
	return notification.Email{
		To: user.Email,
		Data: map[string]any{
			"name":          name,
			"amount":        formatAmount(amount, currency),
			"transactionId": tx.ID,
			"dashboardUrl":  s.link("/dashboard/payments"),
		},
	}, true
}

func (s *webhookService) notifyPurchase(ctx context.Context, tx *models.Transaction, gw models.GatewayResponse) {
	email, ok := s.baseEmail(ctx, tx, gw.Amount, gw.Currency)
	if !ok {
		return
	}
	email.Type = notification.TypePaymentSuccess

	switch tx.Type {
	case models.TypeCoursePurchase:
		course, err := s.courses.GetByID(ctx, tx.CourseID)
		if err != nil {
			slog.Error("failed to load course for notification, sending receipt", "course_id", tx.CourseID, "error", err)
			break
		}
		email.Type = notification.TypeCourseEnrollment
		email.Data["courseName"] = course.Title
		email.Data["instructor"] = course.Instructor
		email.Data["dashboardUrl"] = s.link("/dashboard/courses/" + course.ID)

	case models.TypeAppointmentBooking:
		appt, err := s.appointments.GetByID(ctx, tx.AppointmentID)
		if err != nil {
			slog.Error("failed to load appointment for notification, sending receipt", "appointment_id", tx.AppointmentID, "error", err)
			break
		}
		email.Type = notification.TypeAppointmentConfirmation
		email.Data["consultant"] = appt.ConsultantName
		email.Data["scheduledAt"] = appt.ScheduledAt.UTC().Format(appointmentTimeLayout)
		email.Data["dashboardUrl"] = s.link("/dashboard/appointments")
	}

	s.dispatch(ctx, tx, email)
}

func (s *webhookService) notifyPaymentFailed(ctx context.Context, tx *models.Transaction, gw models.GatewayResponse) {
	email, ok := s.baseEmail(ctx, tx, gw.Amount, gw.Currency)
	if !ok {
		return
	}
	email.Type = notification.TypePaymentFailed
	email.Data["reason"] = gw.ErrorDescription
	s.dispatch(ctx, tx, email)
}

func (s *webhookService) notifyRefund(ctx context.Context, tx *models.Transaction, r webhook.RefundEntity) {
	email, ok := s.baseEmail(ctx, tx, r.Amount, r.Currency)
	if !ok {
		return
	}
	email.Type = notification.TypeRefundProcessed
	email.Data["reason"] = refundReason(r)
	s.dispatch(ctx, tx, email)
}

// dispatch never fails the caller; the state change it reports is already committed.
func (s *webhookService) dispatch(ctx context.Context, tx *models.Transaction, email notification.Email) {
	if err := s.dispatcher.Send(ctx, email); err != nil {
		slog.Error("failed to dispatch notification", "transaction_id", tx.ID, "type", email.Type, "error", err)
		return
	}
	slog.Info("notification dispatched", "transaction_id", tx.ID, "type", email.Type)
}
