package models

import "time"

type Course struct {
	ID            string
	Title         string
	Instructor    string
	Price         int64
	Currency      string
	TotalStudents int32
}

type EnrollmentStatus string

const (
	EnrollmentActive   EnrollmentStatus = "ACTIVE"
	EnrollmentRefunded EnrollmentStatus = "REFUNDED"
)

type Enrollment struct {
	ID        string
	UserID    string
	CourseID  string
	Status    EnrollmentStatus
	CreatedAt time.Time
}
