package repository

import (
	"context"

	"github.com/bnoverseas/payments-service/internal/models"
)

type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentRepository keeps enrollments and the course student counter in
// step. Enrollments are granted by TransactionRepository.MarkCompleted.
type EnrollmentRepository interface {
	// Revoke moves an active enrollment to REFUNDED and decrements the counter.
	Revoke(ctx context.Context, userID, courseID string) (bool, error)
}
