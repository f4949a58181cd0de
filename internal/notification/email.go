package notification

import "context"

type Type string

const (
	TypeCourseEnrollment        Type = "course-enrollment"
	TypeAppointmentConfirmation Type = "appointment-confirmation"
	TypePaymentSuccess          Type = "payment-success"
	TypePaymentFailed           Type = "payment-failed"
	TypeRefundProcessed         Type = "refund-processed"
)

// Email is a templated notification job. Data holds the template fields for Type.
type Email struct {
	To   string         `json:"to"`
	Type Type           `json:"type"`
	Data map[string]any `json:"data"`
}

// Dispatcher hands an email off for delivery.
type Dispatcher interface {
	Send(ctx context.Context, email Email) error
}
