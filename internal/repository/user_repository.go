package repository

import (
	"context"

	"github.com/bnoverseas/payments-service/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
