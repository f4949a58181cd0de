package repository

import (
	"context"
	"time"

	"github.com/bnoverseas/payments-service/internal/models"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) (bool, error)
	Cancel(ctx context.Context, gatewaySubscriptionID string, at time.Time) (bool, error)
}
