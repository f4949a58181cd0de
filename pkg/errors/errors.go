package errors

import (
	"errors"
)

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrCourseNotFound           = errors.New("course not found")
	ErrAppointmentNotFound      = errors.New("appointment not found")
	ErrNilTransaction           = errors.New("transaction is nil")
	ErrNilSubscription          = errors.New("subscription is nil")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrMissingSignature         = errors.New("webhook signature missing")
	ErrInvalidSignature         = errors.New("webhook signature mismatch")
	ErrMalformedPayload         = errors.New("malformed webhook payload")
	ErrInvalidInput             = errors.New("invalid input")
	ErrForbidden                = errors.New("forbidden")
)
