package repository

import (
	"context"

	"github.com/bnoverseas/payments-service/internal/models"
)

type AppointmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (bool, error)
}
