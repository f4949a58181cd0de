package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bnoverseas/payments-service/internal/models"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const subscriptionTracer = "subscription-repository"

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

// Create stores a subscription keyed by its gateway id. A repeated activation
// for the same gateway id is a no-op and reports false.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) (created bool, err error) {
	if sub == nil {
		return false, pkgerrors.ErrNilSubscription
	}
	ctx, finish := instrument(ctx, subscriptionTracer, "CreateSubscription",
		attribute.String("gateway_subscription_id", sub.GatewaySubscriptionID))
	defer func() { finish(err) }()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = models.SubscriptionActive
	}

	query := `
		INSERT INTO subscriptions (id, user_id, gateway_subscription_id, plan_type, status, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gateway_subscription_id) DO NOTHING`
	created, err = execAffectsOne(ctx, r.db, query,
		sub.ID, sub.UserID, sub.GatewaySubscriptionID, sub.PlanType, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
	)
	if err != nil {
		err = fmt.Errorf("failed to create subscription: %w", err)
		return false, err
	}
	slog.Info("subscription activation processed", "method", "Create", "gateway_subscription_id", sub.GatewaySubscriptionID, "created", created)
	return created, nil
}

func (r *PostgresSubscriptionRepository) Cancel(ctx context.Context, gatewaySubscriptionID string, at time.Time) (ok bool, err error) {
	ctx, finish := instrument(ctx, subscriptionTracer, "CancelSubscription",
		attribute.String("gateway_subscription_id", gatewaySubscriptionID))
	defer func() { finish(err) }()

	query := `UPDATE subscriptions SET status = 'CANCELLED', cancelled_at = $2 WHERE gateway_subscription_id = $1 AND status <> 'CANCELLED'`
	ok, err = execAffectsOne(ctx, r.db, query, gatewaySubscriptionID, at)
	if err != nil {
		err = fmt.Errorf("failed to cancel subscription: %w", err)
		return false, err
	}
	return ok, nil
}
