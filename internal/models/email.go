package models

import "database/sql"

type EmailStatus string

const (
	EmailSent   EmailStatus = "sent"
	EmailFailed EmailStatus = "failed"
)

// EmailLog records one delivery attempt outcome for a notification.
type EmailLog struct {
	Recipient    string
	Type         string
	Subject      string
	Status       EmailStatus
	ErrorMessage sql.NullString
}
