package models

import "time"

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

type Appointment struct {
	ID                 string
	UserID             string
	ConsultantName     string
	ScheduledAt        time.Time
	Fee                int64
	Currency           string
	Status             AppointmentStatus
	CancellationReason string
}
