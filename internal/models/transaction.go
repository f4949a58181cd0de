package models

import (
	"encoding/json"
	"time"
)

type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Type            TransactionType `json:"type"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Status          StatusType      `json:"status"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	CourseID        string          `json:"course_id,omitempty"`
	AppointmentID   string          `json:"appointment_id,omitempty"`
	RefundAmount    int64           `json:"refund_amount,omitempty"`
	RefundReason    string          `json:"refund_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TypeCoursePurchase     TransactionType = "COURSE_PURCHASE"
	TypeAppointmentBooking TransactionType = "APPOINTMENT_BOOKING"
	TypeSubscription       TransactionType = "SUBSCRIPTION"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeCoursePurchase, TypeAppointmentBooking, TypeSubscription:
		return true
	}
	return false
}

type StatusType string

const (
	StatusPending   StatusType = "PENDING"
	StatusCompleted StatusType = "COMPLETED"
	StatusFailed    StatusType = "FAILED"
	StatusRefunded  StatusType = "REFUNDED"
)

func (s StatusType) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// GatewayResponse is the normalized snapshot of the gateway payment stored on a
// transaction. PaymentID is the key refunds are matched against.
type GatewayResponse struct {
	PaymentID        string    `json:"payment_id"`
	OrderID          string    `json:"order_id,omitempty"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Method           string    `json:"method,omitempty"`
	Status           string    `json:"status,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
