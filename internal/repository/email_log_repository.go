package repository

import (
	"context"

	"github.com/bnoverseas/payments-service/internal/models"
)

type EmailLogRepository interface {
	SaveLog(ctx context.Context, entry models.EmailLog) error
}
